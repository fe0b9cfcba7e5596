// Package ice hands out the STUN/TURN servers a browser or terminal peer
// should use for a call.
package ice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pion/webrtc/v4"
)

var ErrProviderUnavailable = errors.New("ice provider unavailable")

// Public STUN servers used whenever no provider can answer.
var defaultURLs = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// DefaultServers returns a fresh copy of the public fallback list.
func DefaultServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(defaultURLs))
	for i, u := range defaultURLs {
		out[i] = webrtc.ICEServer{URLs: []string{u}}
	}
	return out
}

// Provider returns a time-boxed list of relay and traversal servers.
type Provider interface {
	ICEServers(ctx context.Context) ([]webrtc.ICEServer, error)
}

// Static always returns the same list.
type Static struct {
	Servers []webrtc.ICEServer
}

func (s Static) ICEServers(context.Context) ([]webrtc.ICEServer, error) {
	if len(s.Servers) == 0 {
		return nil, fmt.Errorf("%w: no servers configured", ErrProviderUnavailable)
	}
	out := make([]webrtc.ICEServer, len(s.Servers))
	copy(out, s.Servers)
	return out, nil
}

// FromURLs builds a server list from plain STUN and TURN URL lists. TURN
// URLs require both a username and a password.
func FromURLs(stunURLs, turnURLs []string, username, password string) ([]webrtc.ICEServer, error) {
	stunURLs = trimEmpty(stunURLs)
	turnURLs = trimEmpty(turnURLs)

	var servers []webrtc.ICEServer
	if len(stunURLs) > 0 {
		s := webrtc.ICEServer{URLs: stunURLs}
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("stun: %w", err)
		}
		servers = append(servers, s)
	}
	if len(turnURLs) > 0 {
		if username == "" || password == "" {
			return nil, errors.New("turn: username and password must both be set")
		}
		s := webrtc.ICEServer{URLs: turnURLs, Username: username, Credential: password}
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("turn: %w", err)
		}
		servers = append(servers, s)
	}
	return servers, nil
}

// Fallback wraps a provider so callers always get a usable list: any error
// or empty answer is logged and replaced with DefaultServers.
type Fallback struct {
	Primary Provider
	Log     *slog.Logger
}

func (f Fallback) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	if f.Primary == nil {
		return DefaultServers(), nil
	}
	servers, err := f.Primary.ICEServers(ctx)
	if err == nil && len(servers) > 0 {
		return servers, nil
	}
	if f.Log != nil {
		f.Log.Warn("using public stun servers", "err", err)
	}
	return DefaultServers(), nil
}

func validate(s webrtc.ICEServer) error {
	if len(s.URLs) == 0 {
		return errors.New("urls must be non-empty")
	}
	for _, u := range s.URLs {
		switch scheme(u) {
		case "stun", "stuns":
		case "turn", "turns":
			if s.Username == "" || s.Credential == nil {
				return fmt.Errorf("%q needs credentials", u)
			}
		default:
			return fmt.Errorf("%q: unsupported scheme", u)
		}
	}
	return nil
}

func scheme(url string) string {
	i := strings.IndexByte(url, ':')
	if i < 0 {
		return ""
	}
	return strings.ToLower(url[:i])
}

func hasTURN(s webrtc.ICEServer) bool {
	for _, u := range s.URLs {
		if sc := scheme(u); sc == "turn" || sc == "turns" {
			return true
		}
	}
	return false
}

func trimEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

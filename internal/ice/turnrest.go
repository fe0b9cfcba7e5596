package ice

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// TURNREST mints coturn "use-auth-secret" credentials for every TURN entry
// of Servers:
//
//	username   = <unix expiry>:<prefix>:<nonce>
//	credential = base64(hmac_sha1(secret, username))
type TURNREST struct {
	Servers []webrtc.ICEServer
	Secret  string
	TTL     time.Duration
	Prefix  string

	now   func() time.Time
	nonce func() string
}

func NewTURNREST(servers []webrtc.ICEServer, secret string, ttl time.Duration, prefix string) (*TURNREST, error) {
	if secret == "" {
		return nil, errors.New("turn rest: shared secret is required")
	}
	if ttl < time.Second {
		return nil, errors.New("turn rest: ttl must be at least one second")
	}
	if prefix == "" {
		prefix = "mindconnect"
	}
	if strings.Contains(prefix, ":") {
		return nil, errors.New("turn rest: prefix must not contain ':'")
	}
	return &TURNREST{
		Servers: servers,
		Secret:  secret,
		TTL:     ttl,
		Prefix:  prefix,
		now:     time.Now,
		nonce:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}, nil
}

func (p *TURNREST) ICEServers(context.Context) ([]webrtc.ICEServer, error) {
	if len(p.Servers) == 0 {
		return nil, fmt.Errorf("%w: no servers configured", ErrProviderUnavailable)
	}
	expiry := p.now().UTC().Add(p.TTL).Unix()
	username := fmt.Sprintf("%d:%s:%s", expiry, p.Prefix, p.nonce())
	credential := sign(p.Secret, username)

	out := make([]webrtc.ICEServer, len(p.Servers))
	for i, s := range p.Servers {
		out[i] = s
		if hasTURN(s) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out, nil
}

func sign(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

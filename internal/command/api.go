package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/mindconnect/internal/dns"
	"github.com/BioHazard786/mindconnect/internal/store"
)

// apiClient talks to the relay's REST surface.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: &http.Transport{DialContext: dns.DialContext},
		},
	}
}

type demoRoomResponse struct {
	Session *store.Session `json:"session"`
	RoomID  string         `json:"roomId"`
}

// iceServerJSON is the browser RTCIceServer shape the relay returns.
type iceServerJSON struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

func (c *apiClient) SessionByRoom(ctx context.Context, roomID string) (*store.Session, error) {
	var s store.Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/room/"+url.PathEscape(roomID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *apiClient) SessionMessages(ctx context.Context, sessionID string) ([]store.ChatMessage, error) {
	var msgs []store.ChatMessage
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/messages", &msgs)
	return msgs, err
}

func (c *apiClient) UserSessions(ctx context.Context, userID string) ([]store.Session, error) {
	var sessions []store.Session
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/sessions", &sessions)
	return sessions, err
}

func (c *apiClient) DemoRoom(ctx context.Context) (*demoRoomResponse, error) {
	var out demoRoomResponse
	if err := c.do(ctx, http.MethodPost, "/api/demo-room", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ICEServers makes apiClient an ice.Provider.
func (c *apiClient) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	var raw []iceServerJSON
	if err := c.do(ctx, http.MethodGet, "/api/ice-servers", &raw); err != nil {
		return nil, err
	}
	servers := make([]webrtc.ICEServer, 0, len(raw))
	for _, s := range raw {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &body) != nil || body.Message == "" {
			body.Message = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s %s: %d %s", ErrRelayFailure, method, path, resp.StatusCode, body.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

package ice

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

type failingProvider struct{ err error }

func (f failingProvider) ICEServers(context.Context) ([]webrtc.ICEServer, error) {
	return nil, f.err
}

func TestFallback_UsesPublicSTUNOnError(t *testing.T) {
	p := Fallback{Primary: failingProvider{err: errors.New("boom")}}
	servers, err := p.ICEServers(context.Background())
	if err != nil {
		t.Fatalf("ICEServers: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("servers=%d, want 2", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.l.google.com:19302" || servers[1].URLs[0] != "stun:stun1.l.google.com:19302" {
		t.Fatalf("servers=%+v", servers)
	}
}

func TestFallback_PassesThroughPrimary(t *testing.T) {
	want := []webrtc.ICEServer{{URLs: []string{"stun:example.com:3478"}}}
	p := Fallback{Primary: Static{Servers: want}}
	got, err := p.ICEServers(context.Background())
	if err != nil {
		t.Fatalf("ICEServers: %v", err)
	}
	if len(got) != 1 || got[0].URLs[0] != "stun:example.com:3478" {
		t.Fatalf("got=%+v", got)
	}
}

func TestFromURLs(t *testing.T) {
	servers, err := FromURLs(
		[]string{" stun:a.example.com:3478 ", ""},
		[]string{"turn:b.example.com:3478?transport=udp", "turns:b.example.com:5349"},
		"user", "pass",
	)
	if err != nil {
		t.Fatalf("FromURLs: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("servers=%d, want 2", len(servers))
	}
	if servers[0].URLs[0] != "stun:a.example.com:3478" || servers[0].Credential != nil {
		t.Fatalf("stun entry=%+v", servers[0])
	}
	if cred, _ := servers[1].Credential.(string); cred != "pass" || servers[1].Username != "user" {
		t.Fatalf("turn entry=%+v", servers[1])
	}

	if _, err := FromURLs(nil, []string{"turn:x"}, "", ""); err == nil {
		t.Fatal("turn without credentials accepted")
	}
	if _, err := FromURLs([]string{"http://x"}, nil, "", ""); err == nil {
		t.Fatal("unsupported scheme accepted")
	}
}

func TestTURNREST_SignsOnlyTURNEntries(t *testing.T) {
	p, err := NewTURNREST([]webrtc.ICEServer{
		{URLs: []string{"stun:s.example.com:3478"}},
		{URLs: []string{"turn:t.example.com:3478"}},
	}, "shared-secret", time.Hour, "mc")
	if err != nil {
		t.Fatalf("NewTURNREST: %v", err)
	}
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	p.nonce = func() string { return "abc" }

	servers, err := p.ICEServers(context.Background())
	if err != nil {
		t.Fatalf("ICEServers: %v", err)
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("stun entry got credentials: %+v", servers[0])
	}

	wantUser := "1700003600:mc:abc"
	if servers[1].Username != wantUser {
		t.Fatalf("username=%q, want %q", servers[1].Username, wantUser)
	}
	mac := hmac.New(sha1.New, []byte("shared-secret"))
	mac.Write([]byte(wantUser))
	wantCred := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if servers[1].Credential != wantCred {
		t.Fatalf("credential=%v, want %q", servers[1].Credential, wantCred)
	}
}

func TestNewTURNREST_Validation(t *testing.T) {
	if _, err := NewTURNREST(nil, "", time.Hour, ""); err == nil {
		t.Fatal("empty secret accepted")
	}
	if _, err := NewTURNREST(nil, "s", 0, ""); err == nil {
		t.Fatal("zero ttl accepted")
	}
	if _, err := NewTURNREST(nil, "s", time.Hour, "a:b"); err == nil {
		t.Fatal("prefix with colon accepted")
	}
}

func TestTwilio_ParsesTokenResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2010-04-01/Accounts/AC1/Tokens.json" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if u, p, ok := r.BasicAuth(); !ok || u != "AC1" || p != "tok" {
			t.Errorf("basic auth=%q,%q,%v", u, p, ok)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ice_servers":[
			{"url":"stun:global.stun.twilio.com:3478","urls":"stun:global.stun.twilio.com:3478"},
			{"urls":["turn:global.turn.twilio.com:3478?transport=udp"],"username":"u","credential":"c"}
		]}`))
	}))
	defer srv.Close()

	tw := NewTwilio("AC1", "tok")
	tw.BaseURL = srv.URL

	servers, err := tw.ICEServers(context.Background())
	if err != nil {
		t.Fatalf("ICEServers: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("servers=%d, want 2", len(servers))
	}
	if servers[1].Username != "u" || servers[1].Credential != "c" {
		t.Fatalf("turn entry=%+v", servers[1])
	}
}

func TestTwilio_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tw := NewTwilio("AC1", "bad")
	tw.BaseURL = srv.URL
	if _, err := tw.ICEServers(context.Background()); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err=%v, want ErrProviderUnavailable", err)
	}

	if _, err := NewTwilio("", "").ICEServers(context.Background()); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err=%v, want ErrProviderUnavailable", err)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(Options{}, envMap(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != DefaultAddr || cfg.Server.WSPath != "/ws" {
		t.Fatalf("server=%+v", cfg.Server)
	}
	if cfg.Server.PingInterval != 0 {
		t.Fatalf("PingInterval=%v, want heartbeats off by default", cfg.Server.PingInterval)
	}
	if cfg.Client.ReconnectInterval != 3*time.Second {
		t.Fatalf("ReconnectInterval=%v, want 3s", cfg.Client.ReconnectInterval)
	}
	if cfg.Server.DatabaseURL != "" {
		t.Fatalf("DatabaseURL=%q, want empty", cfg.Server.DatabaseURL)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mindconnect.toml")
	err := os.WriteFile(path, []byte(`
[server]
addr = ":7000"
database_url = "postgres://file"
ping_interval = "30s"

[ice]
stun_urls = ["stun:file.example.com:3478"]
turn_secret = "s3cret"

[client]
server_url = "wss://file.example.com/ws"
reconnect_interval = "5s"
`), 0o600)
	if err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := envMap(map[string]string{
		"DATABASE_URL":  "postgres://env",
		"STUN_SERVERS":  "stun:env1:3478, stun:env2:3478",
		"PING_INTERVAL": "20s",
	})
	cfg, err := load(Options{ConfigPath: path, PingInterval: "10s"}, env)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != ":7000" {
		t.Fatalf("Addr=%q, want file value", cfg.Server.Addr)
	}
	if cfg.Server.DatabaseURL != "postgres://env" {
		t.Fatalf("DatabaseURL=%q, want env over file", cfg.Server.DatabaseURL)
	}
	if cfg.Server.PingInterval != 10*time.Second {
		t.Fatalf("PingInterval=%v, want flag over env", cfg.Server.PingInterval)
	}
	if len(cfg.ICE.STUNURLs) != 2 || cfg.ICE.STUNURLs[1] != "stun:env2:3478" {
		t.Fatalf("STUNURLs=%v", cfg.ICE.STUNURLs)
	}
	if cfg.ICE.TURNSecret != "s3cret" {
		t.Fatalf("TURNSecret=%q", cfg.ICE.TURNSecret)
	}
	if cfg.Client.ReconnectInterval != 5*time.Second {
		t.Fatalf("ReconnectInterval=%v, want 5s", cfg.Client.ReconnectInterval)
	}
	if got := cfg.APIBaseURL(); got != "https://file.example.com" {
		t.Fatalf("APIBaseURL=%q", got)
	}
}

func TestLoad_PortEnv(t *testing.T) {
	cfg, err := load(Options{}, envMap(map[string]string{"PORT": "5000"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":5000" {
		t.Fatalf("Addr=%q, want :5000", cfg.Server.Addr)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		env  map[string]string
	}{
		{"bad duration", Options{ReconnectInterval: "soon"}, nil},
		{"zero reconnect", Options{ReconnectInterval: "0s"}, nil},
		{"bad server url", Options{ServerURL: "http://x"}, nil},
		{"bad send buffer", Options{}, map[string]string{"SEND_BUFFER": "-1"}},
		{"missing file", Options{ConfigPath: "/nonexistent/mindconnect.toml"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(tt.opts, envMap(tt.env)); err == nil {
				t.Fatal("load succeeded, want error")
			}
		})
	}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values.
const (
	DefaultAddr              = ":8080"
	DefaultWSPath            = "/ws"
	DefaultServerURL         = "ws://localhost:8080/ws"
	DefaultSendBuffer        = 256
	DefaultMaxMessageSize    = 64 * 1024
	DefaultWriteWait         = 10 * time.Second
	DefaultReconnectInterval = 3 * time.Second
	DefaultTURNTTL           = time.Hour
	DefaultLogFormat         = "text"
)

// Config holds the settings for both the relay server and the client
// commands. Each command reads the sections it needs.
type Config struct {
	Server Server
	ICE    ICE
	Client Client
	Log    Log
}

type Server struct {
	Addr           string
	WSPath         string
	DatabaseURL    string // empty selects the in-memory store
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PingInterval   time.Duration // zero disables heartbeats
}

type ICE struct {
	STUNURLs     []string
	TURNURLs     []string
	TURNUsername string
	TURNPassword string

	// TURNSecret switches TURN credentials to time-boxed coturn REST ones.
	TURNSecret string
	TURNTTL    time.Duration

	TwilioAccountSID string
	TwilioAuthToken  string
}

type Client struct {
	ServerURL         string
	UserID            string
	ReconnectInterval time.Duration
	ForceRelay        bool
}

type Log struct {
	Level  string
	Format string
}

// Options carries CLI flag values. Zero values mean "not set".
type Options struct {
	ConfigPath string

	Addr         string
	DatabaseURL  string
	PingInterval string

	STUNServers  string // comma separated
	TURNServers  string // comma separated
	TURNUsername string
	TURNPassword string

	ServerURL         string
	UserID            string
	ReconnectInterval string
	ForceRelay        bool

	LogLevel string
}

// file mirrors the TOML layout.
type file struct {
	Server struct {
		Addr           string `toml:"addr"`
		WSPath         string `toml:"ws_path"`
		DatabaseURL    string `toml:"database_url"`
		SendBuffer     int    `toml:"send_buffer"`
		MaxMessageSize int64  `toml:"max_message_size"`
		WriteWait      string `toml:"write_wait"`
		PingInterval   string `toml:"ping_interval"`
	} `toml:"server"`

	ICE struct {
		STUNURLs         []string `toml:"stun_urls"`
		TURNURLs         []string `toml:"turn_urls"`
		TURNUsername     string   `toml:"turn_username"`
		TURNPassword     string   `toml:"turn_password"`
		TURNSecret       string   `toml:"turn_secret"`
		TURNTTL          string   `toml:"turn_ttl"`
		TwilioAccountSID string   `toml:"twilio_account_sid"`
		TwilioAuthToken  string   `toml:"twilio_auth_token"`
	} `toml:"ice"`

	Client struct {
		ServerURL         string `toml:"server_url"`
		UserID            string `toml:"user_id"`
		ReconnectInterval string `toml:"reconnect_interval"`
		ForceRelay        bool   `toml:"force_relay"`
	} `toml:"client"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. TOML file named by Options.ConfigPath or CONFIG_FILE
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	return load(opts, os.LookupEnv)
}

func load(opts Options, lookup func(string) (string, bool)) (*Config, error) {
	env := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	var f file
	path := first(opts.ConfigPath, env("CONFIG_FILE"))
	if path != "" {
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var errs []error
	dur := func(name string, def time.Duration, vals ...string) time.Duration {
		raw := first(vals...)
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("invalid %s %q", name, raw))
			return def
		}
		return d
	}
	num := func(name string, def int64, fileVal int64, envVal string) int64 {
		if envVal != "" {
			n, err := strconv.ParseInt(envVal, 10, 64)
			if err != nil || n <= 0 {
				errs = append(errs, fmt.Errorf("invalid %s %q", name, envVal))
				return def
			}
			return n
		}
		if fileVal > 0 {
			return fileVal
		}
		return def
	}

	cfg := &Config{
		Server: Server{
			Addr:           first(opts.Addr, env("LISTEN_ADDR"), portAddr(env("PORT")), f.Server.Addr, DefaultAddr),
			WSPath:         first(env("WS_PATH"), f.Server.WSPath, DefaultWSPath),
			DatabaseURL:    first(opts.DatabaseURL, env("DATABASE_URL"), f.Server.DatabaseURL),
			SendBuffer:     int(num("SEND_BUFFER", DefaultSendBuffer, int64(f.Server.SendBuffer), env("SEND_BUFFER"))),
			MaxMessageSize: num("MAX_MESSAGE_SIZE", DefaultMaxMessageSize, f.Server.MaxMessageSize, env("MAX_MESSAGE_SIZE")),
			WriteWait:      dur("WRITE_WAIT", DefaultWriteWait, env("WRITE_WAIT"), f.Server.WriteWait),
			PingInterval:   dur("PING_INTERVAL", 0, opts.PingInterval, env("PING_INTERVAL"), f.Server.PingInterval),
		},
		ICE: ICE{
			STUNURLs:         firstList(split(opts.STUNServers), split(env("STUN_SERVERS")), f.ICE.STUNURLs),
			TURNURLs:         firstList(split(opts.TURNServers), split(env("TURN_SERVERS")), f.ICE.TURNURLs),
			TURNUsername:     first(opts.TURNUsername, env("TURN_USERNAME"), f.ICE.TURNUsername),
			TURNPassword:     first(opts.TURNPassword, env("TURN_PASSWORD"), f.ICE.TURNPassword),
			TURNSecret:       first(env("TURN_SECRET"), f.ICE.TURNSecret),
			TURNTTL:          dur("TURN_TTL", DefaultTURNTTL, env("TURN_TTL"), f.ICE.TURNTTL),
			TwilioAccountSID: first(env("TWILIO_ACCOUNT_SID"), f.ICE.TwilioAccountSID),
			TwilioAuthToken:  first(env("TWILIO_AUTH_TOKEN"), f.ICE.TwilioAuthToken),
		},
		Client: Client{
			ServerURL:         first(opts.ServerURL, env("SERVER_URL"), f.Client.ServerURL, DefaultServerURL),
			UserID:            first(opts.UserID, env("USER_ID"), f.Client.UserID),
			ReconnectInterval: dur("RECONNECT_INTERVAL", DefaultReconnectInterval, opts.ReconnectInterval, env("RECONNECT_INTERVAL"), f.Client.ReconnectInterval),
			ForceRelay:        opts.ForceRelay || parseBool(env("FORCE_RELAY")) || f.Client.ForceRelay,
		},
		Log: Log{
			Level:  first(opts.LogLevel, env("LOG_LEVEL"), f.Log.Level),
			Format: first(env("LOG_FORMAT"), f.Log.Format, DefaultLogFormat),
		},
	}

	if cfg.Client.ReconnectInterval == 0 {
		errs = append(errs, errors.New("RECONNECT_INTERVAL must be positive"))
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		errs = append(errs, fmt.Errorf("WS_PATH %q must start with /", cfg.Server.WSPath))
	}
	if u, err := url.Parse(cfg.Client.ServerURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("SERVER_URL %q must be a ws:// or wss:// url", cfg.Client.ServerURL))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// APIBaseURL derives the REST base URL (http or https, no path) from the
// websocket server URL.
func (c *Config) APIBaseURL() string {
	u, err := url.Parse(c.Client.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return u.String()
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstList(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func split(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// portAddr accepts the bare PORT convention of hosting platforms.
func portAddr(port string) string {
	if port == "" {
		return ""
	}
	return ":" + port
}

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps LOG_LEVEL style names to a slog level. Unknown names
// fall back to def.
func ParseLevel(name string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return def
}

// New builds a logger writing to w in the given format ("text" or "json").
func New(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	return slog.New(handler), nil
}

// Init installs the default logger from LOG_LEVEL and LOG_FORMAT. Without
// LOG_LEVEL only errors are shown, which keeps interactive commands quiet.
func Init() *slog.Logger {
	return Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), slog.LevelError)
}

// Setup is Init with explicit values, for commands that take a log level
// from their own config. An invalid format falls back to text.
func Setup(level, format string, def slog.Level) *slog.Logger {
	logger, err := New(os.Stderr, ParseLevel(level, def), format)
	if err != nil {
		logger, _ = New(os.Stderr, ParseLevel(level, def), "text")
		logger.Warn("ignoring log format", "err", err)
	}
	slog.SetDefault(logger)
	return logger
}

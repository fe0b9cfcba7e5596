package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":      slog.LevelDebug,
		"dev":        slog.LevelDebug,
		"INFO":       slog.LevelInfo,
		"warning":    slog.LevelWarn,
		"prod":       slog.LevelError,
		"":           slog.LevelWarn,
		"nonsense":   slog.LevelWarn,
		" info ":     slog.LevelInfo,
		"production": slog.LevelError,
	}
	for in, want := range tests {
		if got := ParseLevel(in, slog.LevelWarn); got != want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", in, got, want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, slog.LevelInfo, "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("peer joined", "room", "R1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not one json record: %q", buf.String())
	}
	if rec["msg"] != "peer joined" || rec["room"] != "R1" {
		t.Fatalf("record=%v", rec)
	}

	if _, err := New(&buf, slog.LevelInfo, "xml"); err == nil {
		t.Fatal("unsupported format accepted")
	}
}

func TestPionFactory(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, slog.LevelInfo, "text")
	l := PionFactory(logger).NewLogger("ice")

	l.Debugf("candidate %d", 1)
	l.Warnf("candidate %s failed", "host")

	out := buf.String()
	if strings.Contains(out, "candidate 1") {
		t.Fatalf("debug record leaked at info level: %q", out)
	}
	if !strings.Contains(out, "candidate host failed") || !strings.Contains(out, "pion=ice") {
		t.Fatalf("output=%q", out)
	}
}

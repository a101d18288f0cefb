package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func logLine(t *testing.T, fn func(*slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	fn(New("debug", &buf))
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	return out
}

func TestRedactsSensitiveKeys(t *testing.T) {
	out := logLine(t, func(l *slog.Logger) {
		l.Info("registered", "agent_id", "a", "token", "hld_sk_abc123")
	})
	if out["token"] != "[REDACTED]" {
		t.Errorf("token not redacted: %v", out["token"])
	}
	if out["agent_id"] != "a" {
		t.Errorf("benign attribute mangled: %v", out["agent_id"])
	}
}

func TestRedactsTokenValues(t *testing.T) {
	out := logLine(t, func(l *slog.Logger) {
		l.Info("request", "detail", "header was Bearer hld_sk_abc123")
	})
	if out["detail"] != "[REDACTED]" {
		t.Errorf("bearer value not redacted: %v", out["detail"])
	}
}

func TestTimestampKey(t *testing.T) {
	out := logLine(t, func(l *slog.Logger) {
		l.Info("hello")
	})
	if _, ok := out["timestamp"]; !ok {
		t.Error("timestamp key missing")
	}
	if _, ok := out["time"]; ok {
		t.Error("default time key should be renamed")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bizarre": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", &buf)
	l.Info("quiet")
	l.Warn("loud")
	if strings.Contains(buf.String(), "quiet") {
		t.Error("info leaked past warn level")
	}
	if !strings.Contains(buf.String(), "loud") {
		t.Error("warn suppressed")
	}
}

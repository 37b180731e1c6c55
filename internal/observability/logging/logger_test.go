package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_JSONOutputWithFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	l := WithRequest("req-1", "sess-1", "chat")
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["requestId"] != "req-1" {
		t.Errorf("expected requestId req-1, got %v", entry["requestId"])
	}
	if entry["sessionId"] != "sess-1" {
		t.Errorf("expected sessionId sess-1, got %v", entry["sessionId"])
	}
	if entry["requestType"] != "chat" {
		t.Errorf("expected requestType chat, got %v", entry["requestType"])
	}
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	Init(Config{Level: "loud", Format: "json", Output: &bytes.Buffer{}})
	defer Init(DefaultConfig())

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", zerolog.GlobalLevel())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.Format != "json" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

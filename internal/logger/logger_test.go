package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "text"}, &buf)

	log.Info("ingest completed", "repo_id", 7)

	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "repo_id=7") {
		t.Errorf("expected text-encoded record with attributes, got: %s", out)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json"}, &buf)

	log.Debug("queuing task", "kind", "ingest")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if record["level"] != "DEBUG" || record["kind"] != "ingest" {
		t.Errorf("unexpected record contents: %v", record)
	}
}

func TestNew_LevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "error", Format: "text"}, &buf)

	log.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info record below the error threshold to be dropped, got: %s", buf.String())
	}

	log.Error("kept")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("expected error record to pass the threshold, got: %s", buf.String())
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSONLoggerToAddsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLoggerTo(&buf, "estimator-api", "warn")

	logger.Info("hidden")
	logger.Warn("rate degraded", "currency", "EUR")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "estimator-api" || entry["msg"] != "rate degraded" || entry["currency"] != "EUR" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

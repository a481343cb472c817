package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in  string
		out slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.out {
			t.Errorf("parseLevel(%q)=%v want %v", tt.in, got, tt.out)
		}
	}
}

func TestInitAndWithContext(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", "json")
	t.Cleanup(func() { Init("error", "text") })

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithRunID(ctx, "run-abc")
	WithContext(ctx).Info("hello", "k", "v")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["request_id"] != "req-123" || entry["run_id"] != "run-abc" {
		t.Errorf("ids missing from entry: %v", entry)
	}
	if entry["msg"] != "hello" || entry["k"] != "v" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestWithContext_NoIDs(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info", "text")
	t.Cleanup(func() { Init("error", "text") })

	WithContext(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "request_id") || strings.Contains(buf.String(), "run_id") {
		t.Errorf("unexpected ids in %q", buf.String())
	}

	Debug("filtered")
	if strings.Contains(buf.String(), "filtered") {
		t.Errorf("debug message should be dropped at info level")
	}
	Warn("warn message")
	Error("error message")
	Info("info message")
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" || RunID(ctx) != "" {
		t.Fatal("expected empty ids")
	}
	// plain string keys must not collide with the typed keys
	ctx = context.WithValue(ctx, "run_id", "x") //nolint:staticcheck
	if RunID(ctx) != "" {
		t.Errorf("string key leaked into RunID")
	}
}

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// --- ParseLevel Tests ---

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// --- NewLogger Tests ---

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithAgentID(WithExecutionID(NewLogger(&buf, "", slog.LevelInfo), "exec-1"), "agent-7")

	logger.Debug("hidden")
	logger.Info("visible")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected single JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "visible" {
		t.Errorf("expected msg %q, got %v", "visible", rec["msg"])
	}
	if rec["execution_id"] != "exec-1" || rec["agent_id"] != "agent-7" {
		t.Errorf("expected execution_id and agent_id attributes, got %v", rec)
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "TEXT", slog.LevelInfo).Info("hello", "step_id", "s1")

	if !strings.Contains(buf.String(), "step_id=s1") {
		t.Errorf("expected text record, got %q", buf.String())
	}
}

func TestWithAgentID_Empty(t *testing.T) {
	var buf bytes.Buffer
	WithAgentID(NewLogger(&buf, "text", slog.LevelInfo), "").Info("x")

	if strings.Contains(buf.String(), "agent_id") {
		t.Errorf("expected no agent_id attribute, got %q", buf.String())
	}
}

// --- Context Tests ---

func TestLoggerFromContext(t *testing.T) {
	if _, ok := LoggerFrom(context.Background()); ok {
		t.Error("expected no logger in empty context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger fallback")
	}

	l := NewLogger(&bytes.Buffer{}, "json", slog.LevelInfo)
	ctx := WithLogger(context.Background(), l)

	got, ok := LoggerFrom(ctx)
	if !ok || got != l {
		t.Error("expected logger from context")
	}
	if FromContext(ctx) != l {
		t.Error("expected FromContext to return stored logger")
	}
}

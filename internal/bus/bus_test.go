package bus

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
)

func entry(id string, output any, tokens int, elapsed time.Duration) domain.ContextEntry {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := domain.ContextEntry{
		StepID:      id,
		Type:        "llm",
		Output:      output,
		StartedAt:   start,
		CompletedAt: start.Add(elapsed),
	}
	if tokens > 0 {
		e.TokenUsage = &domain.TokenUsage{PromptTokens: tokens, TotalTokens: tokens}
	}
	return e
}

func TestBus_WriteOnce(t *testing.T) {
	b := New(domain.TriggerData{Type: domain.TriggerManual}, nil)

	if err := b.Write(entry("a", "first", 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := b.Write(entry("a", "second", 0, 0))
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	if !strings.Contains(err.Error(), "already has an entry") {
		t.Errorf("unexpected error message: %v", err)
	}
	if b.Output("a") != "first" {
		t.Errorf("expected first output to be kept, got %v", b.Output("a"))
	}
}

func TestBus_Lookups(t *testing.T) {
	b := New(domain.TriggerData{Type: domain.TriggerManual}, nil)
	_ = b.Write(entry("b", 1, 10, 100*time.Millisecond))
	_ = b.Write(entry("a", 2, 5, 50*time.Millisecond))
	_ = b.Write(entry("c", 3, 0, 25*time.Millisecond))

	if !b.Has("a") || b.Has("z") {
		t.Error("unexpected Has result")
	}
	if _, ok := b.Read("z"); ok {
		t.Error("expected missing entry")
	}
	if b.Output("z") != nil {
		t.Error("expected nil output for missing step")
	}

	steps := b.CompletedSteps()
	if strings.Join(steps, ",") != "b,a,c" {
		t.Errorf("expected write order b,a,c, got %v", steps)
	}

	if usage := b.TotalTokenUsage(); usage.TotalTokens != 15 || usage.PromptTokens != 15 {
		t.Errorf("expected 15 tokens, got %+v", usage)
	}
	if ms := b.TotalElapsedMs(); ms != 175 {
		t.Errorf("expected 175ms, got %d", ms)
	}
}

func TestBus_ResolutionContext(t *testing.T) {
	trigger := domain.TriggerData{
		Type:     domain.TriggerMessageReceived,
		Content:  "hello",
		Metadata: map[string]any{"channel": "web"},
	}
	meta := map[string]any{"agentName": "Support"}

	b := New(trigger, meta)
	_ = b.Write(entry("intent-classifier", map[string]any{"intent": "billing"}, 0, 0))

	// Изменения исходных данных не должны влиять на шину
	trigger.Metadata["channel"] = "changed"
	meta["agentName"] = "changed"

	ns := b.ResolutionContext()

	tests := []struct {
		expr     string
		expected any
	}{
		{"trigger.content", "hello"},
		{"trigger.metadata.channel", "web"},
		{"context.agentName", "Support"},
		{"intent-classifier.intent", "billing"},
		{"missing.field", nil},
	}
	for _, tt := range tests {
		if got := engine.EvaluateExpression(tt.expr, ns); got != tt.expected {
			t.Errorf("%s: expected %#v, got %#v", tt.expr, tt.expected, got)
		}
	}

	m := ns.ToMap()
	if _, ok := m["trigger"]; !ok {
		t.Error("expected trigger key")
	}
	if _, ok := m["context"]; !ok {
		t.Error("expected context key")
	}
	if _, ok := m["intent-classifier"]; !ok {
		t.Error("expected step output key")
	}
}

func TestBus_Snapshot(t *testing.T) {
	b := New(domain.TriggerData{Type: domain.TriggerManual, Content: "x"}, map[string]any{"k": "v"})
	_ = b.Write(entry("a", "out", 3, time.Millisecond))

	snap := b.Snapshot()
	if snap.Trigger.Content != "x" {
		t.Errorf("expected trigger content x, got %q", snap.Trigger.Content)
	}
	if snap.Meta["k"] != "v" {
		t.Errorf("expected meta k=v, got %v", snap.Meta)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].StepID != "a" {
		t.Errorf("unexpected entries: %+v", snap.Entries)
	}

	snap.Meta["k"] = "changed"
	if b.ResolutionContext().Meta["k"] != "v" {
		t.Error("expected snapshot to be a copy")
	}
}

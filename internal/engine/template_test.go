package engine

import (
	"errors"
	"testing"
)

func testNamespace() Vars {
	return Vars{
		"trigger": map[string]any{
			"type":    "message_received",
			"content": "Where is my invoice?",
		},
		"context": map[string]any{
			"locale": "ru",
		},
		"intent-classifier": map[string]any{
			"intent":     "billing",
			"confidence": 0.92,
			"tags":       []any{"invoice", "payment"},
		},
		"count": 5,
		"a":     map[string]any{"b": 5.0},
	}
}

// --- ResolveTemplate Tests ---

func TestResolveTemplate_NativeType(t *testing.T) {
	ns := testNamespace()

	result := ResolveTemplate("{{ a.b }}", ns)
	if n, ok := result.(float64); !ok || n != 5 {
		t.Errorf("expected number 5, got %#v", result)
	}

	result = ResolveTemplate("  {{intent-classifier.tags}}  ", ns)
	tags, ok := result.([]any)
	if !ok || len(tags) != 2 {
		t.Errorf("expected array of 2 tags, got %#v", result)
	}

	result = ResolveTemplate("{{ intent-classifier }}", ns)
	if _, ok := result.(map[string]any); !ok {
		t.Errorf("expected object, got %#v", result)
	}

	result = ResolveTemplate("{{ intent-classifier.confidence > 0.5 }}", ns)
	if result != true {
		t.Errorf("expected true, got %#v", result)
	}
}

func TestResolveTemplate_Interpolation(t *testing.T) {
	ns := testNamespace()

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"number", "x={{a.b}}", "x=5"},
		{"two placeholders", "{{ trigger.type }}: {{ trigger.content }}", "message_received: Where is my invoice?"},
		{"missing collapses to empty", "value=[{{ nope.nothing }}]", "value=[]"},
		{"null literal", "[{{ null }}]", "[]"},
		{"int normalized", "count={{count}}", "count=5"},
		{"float", "c={{ intent-classifier.confidence }}", "c=0.92"},
		{"bool", "ok={{ a.b == 5 }}", "ok=true"},
		{"array as JSON", "tags={{ intent-classifier.tags }}", `tags=["invoice","payment"]`},
		{"syntax error collapses to empty", "x={{ a.b == }}", "x="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolveTemplate(tt.template, ns)
			s, ok := result.(string)
			if !ok {
				t.Fatalf("expected string, got %#v", result)
			}
			if s != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, s)
			}
		})
	}
}

func TestResolveTemplate_PlainString(t *testing.T) {
	result := ResolveTemplate("no placeholders here", nil)
	if result != "no placeholders here" {
		t.Errorf("expected string unchanged, got %#v", result)
	}
}

func TestResolveTemplate_WholeMissingIsNil(t *testing.T) {
	if result := ResolveTemplate("{{ missing.path }}", testNamespace()); result != nil {
		t.Errorf("expected nil, got %#v", result)
	}
}

// --- EvaluateCondition Tests ---

func TestEvaluateCondition(t *testing.T) {
	ns := testNamespace()

	tests := []struct {
		name      string
		condition string
		expected  bool
	}{
		{"braced", "{{ intent-classifier.intent == 'billing' }}", true},
		{"bare", "intent-classifier.intent == 'support'", false},
		{"missing path fails closed", "{{ nonexistent.path > 5 }}", false},
		{"syntax error fails closed", "{{ a.b === 5 }}", false},
		{"unknown character fails closed", "{{ a.b + 1 }}", false},
		{"empty fails closed", "", false},
		{"truthy string", "{{ trigger.content }}", true},
		{"negation", "!nonexistent", true},
		{"and", "count >= 5 && context.locale == 'ru'", true},
		{"or", "count > 10 || a.b == '5'", true},
		{"parentheses", "!(count > 10 || false)", true},
		{"split placeholders", "{{ count }} > {{ a.b }}", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := EvaluateCondition(tt.condition, ns); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// --- Evaluator Diagnostics Tests ---

func TestEvaluator_Diagnostics(t *testing.T) {
	var got []string
	ev := NewEvaluator(nil, func(expr string, err error) {
		if !errors.Is(err, ErrExpressionSyntax) {
			t.Errorf("expected syntax error, got %v", err)
		}
		got = append(got, expr)
	})

	if ev.EvaluateCondition("{{ a.b == }}", testNamespace()) {
		t.Error("expected malformed condition to be false")
	}
	ev.ResolveTemplate("hello {{ ( }}", testNamespace())

	if len(got) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(got))
	}
	if got[0] != "a.b ==" {
		t.Errorf("expected expression %q, got %q", "a.b ==", got[0])
	}
}

func TestEvaluator_NilReceiver(t *testing.T) {
	var ev *Evaluator
	if ev.ResolveString("{{ a.b }}", testNamespace()) != "5" {
		t.Error("expected nil evaluator to work with defaults")
	}
}

package scope

import (
	"strings"
	"testing"
	"time"

	"github.com/shaiso/AgentFlow/internal/domain"
)

type usage int

func (u usage) TotalTokenUsage() domain.TokenUsage {
	return domain.TokenUsage{TotalTokens: int(u)}
}

// fakeClock — управляемые часы для проверки лимита времени.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func expectKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	v, ok := AsViolation(err)
	if !ok {
		t.Fatalf("expected violation %s, got %v", kind, err)
	}
	if v.Kind != kind {
		t.Errorf("expected kind %s, got %s", kind, v.Kind)
	}
}

// --- Whitelist Tests ---

func TestCheckModel(t *testing.T) {
	open := NewEnforcer(domain.AgentScopes{})
	if err := open.CheckModel("anything"); err != nil {
		t.Errorf("expected empty whitelist to allow all, got %v", err)
	}

	e := NewEnforcer(domain.AgentScopes{AllowedModels: []string{"openai/gpt-4o-mini"}})
	if err := e.CheckModel("openai/gpt-4o-mini"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := e.CheckModel("anthropic/claude")
	expectKind(t, err, KindModelNotAllowed)
	v, _ := AsViolation(err)
	if v.Detail["model"] != "anthropic/claude" {
		t.Errorf("expected rejected model in detail, got %v", v.Detail)
	}
	if !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestCheckTool(t *testing.T) {
	e := NewEnforcer(domain.AgentScopes{AllowedTools: []string{"lookup_order"}})
	if err := e.CheckTool("lookup_order"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	expectKind(t, e.CheckTool("delete_account"), KindToolNotAllowed)
}

func TestCheckSubAgent(t *testing.T) {
	expectKind(t, NewEnforcer(domain.AgentScopes{}).CheckSubAgent(), KindSubAgentNotAllowed)
	if err := NewEnforcer(domain.AgentScopes{CanCreateSubAgents: true}).CheckSubAgent(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- Budget Tests ---

func TestCheckTime(t *testing.T) {
	clock := newClock()
	e := NewEnforcer(domain.AgentScopes{MaxExecutionTimeMs: 1000}, WithClock(clock.Now))

	clock.Advance(1000 * time.Millisecond)
	if err := e.CheckTime(); err != nil {
		t.Errorf("expected limit to be inclusive, got %v", err)
	}

	clock.Advance(time.Millisecond)
	expectKind(t, e.CheckTime(), KindTimeLimitExceeded)

	unlimited := NewEnforcer(domain.AgentScopes{}, WithClock(clock.Now))
	clock.Advance(time.Hour)
	if err := unlimited.CheckTime(); err != nil {
		t.Errorf("expected zero limit to be unlimited, got %v", err)
	}
}

func TestCheckTokens(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		current    int
		additional int
		wantErr    bool
	}{
		{"unlimited", 0, 1_000_000, 0, false},
		{"negative is unlimited", -1, 10, 10, false},
		{"under", 100, 50, 10, false},
		{"exactly at limit", 100, 90, 10, false},
		{"over", 100, 95, 10, true},
		{"over after step", 100, 101, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEnforcer(domain.AgentScopes{MaxTotalTokens: tt.limit})
			err := e.CheckTokens(usage(tt.current), tt.additional)
			if tt.wantErr {
				expectKind(t, err, KindTokenLimitExceeded)
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// --- Composite Check Tests ---

func TestPreStepCheck_Order(t *testing.T) {
	clock := newClock()
	e := NewEnforcer(domain.AgentScopes{
		AllowedModels:      []string{"m1"},
		AllowedTools:       []string{"t1"},
		MaxExecutionTimeMs: 10,
		MaxTotalTokens:     1,
	}, WithClock(clock.Now))

	// Модель проверяется раньше инструментов
	expectKind(t, e.PreStepCheck(Requirements{Model: "m2", Tools: []string{"t2"}}), KindModelNotAllowed)
	expectKind(t, e.PreStepCheck(Requirements{Model: "m1", Tools: []string{"t1", "t2"}}), KindToolNotAllowed)

	// Токены до шага не проверяются
	if err := e.PreStepCheck(Requirements{Model: "m1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// Время проверяется первым
	clock.Advance(time.Second)
	expectKind(t, e.PreStepCheck(Requirements{Model: "m2"}), KindTimeLimitExceeded)
}

func TestPostStepCheck(t *testing.T) {
	e := NewEnforcer(domain.AgentScopes{MaxTotalTokens: 100})
	if err := e.PostStepCheck(usage(100)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	expectKind(t, e.PostStepCheck(usage(101)), KindTokenLimitExceeded)
}

func TestKind_IsFatal(t *testing.T) {
	if !KindTimeLimitExceeded.IsFatal() || !KindTokenLimitExceeded.IsFatal() {
		t.Error("expected budget violations to be fatal")
	}
	if KindModelNotAllowed.IsFatal() {
		t.Error("expected whitelist violation not to be fatal")
	}
}

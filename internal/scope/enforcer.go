// Package scope проверяет ограничения выполнения flow: разрешённые модели
// и инструменты, потолок токенов, потолок времени, создание под-агентов.
package scope

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// Kind — вид нарушения ограничений.
type Kind string

const (
	KindModelNotAllowed    Kind = "model_not_allowed"
	KindToolNotAllowed     Kind = "tool_not_allowed"
	KindTimeLimitExceeded  Kind = "time_limit_exceeded"
	KindTokenLimitExceeded Kind = "token_limit_exceeded"
	KindSubAgentNotAllowed Kind = "sub_agent_not_allowed"
)

// IsFatal сообщает, прерывает ли нарушение выполнение flow безусловно.
// Нарушения бюджета (время, токены) фатальны всегда; нарушения whitelist
// обрабатываются исполнителем шага как ошибка шага.
func (k Kind) IsFatal() bool {
	return k == KindTimeLimitExceeded || k == KindTokenLimitExceeded
}

// Violation — нарушение ограничений.
type Violation struct {
	Kind    Kind
	Message string
	Detail  map[string]any
}

// Error реализует интерфейс error.
func (v *Violation) Error() string {
	return v.Message
}

// AsViolation извлекает *Violation из цепочки ошибок.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// UsageSource — источник текущего расхода токенов (например, шина контекста).
type UsageSource interface {
	TotalTokenUsage() domain.TokenUsage
}

// Requirements — то, что шаг собирается использовать.
type Requirements struct {
	Model string
	Tools []string
}

// Enforcer проверяет ограничения одного выполнения.
// Создаётся в начале выполнения: с этого момента отсчитывается время.
type Enforcer struct {
	scopes    domain.AgentScopes
	startedAt time.Time
	now       func() time.Time
}

// Option настраивает Enforcer.
type Option func(*Enforcer)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) {
		e.now = now
	}
}

// NewEnforcer создаёт Enforcer и запоминает момент старта.
func NewEnforcer(scopes domain.AgentScopes, opts ...Option) *Enforcer {
	e := &Enforcer{
		scopes: scopes,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.startedAt = e.now()
	return e
}

// Elapsed возвращает время с момента старта.
func (e *Enforcer) Elapsed() time.Duration {
	return e.now().Sub(e.startedAt)
}

// CheckModel проверяет, что модель разрешена. Пустой whitelist разрешает всё.
func (e *Enforcer) CheckModel(model string) error {
	allowed := e.scopes.AllowedModels
	if len(allowed) == 0 || slices.Contains(allowed, model) {
		return nil
	}
	return &Violation{
		Kind:    KindModelNotAllowed,
		Message: fmt.Sprintf("Model %q is not allowed. Allowed models: %s", model, strings.Join(allowed, ", ")),
		Detail:  map[string]any{"model": model, "allowedModels": slices.Clone(allowed)},
	}
}

// CheckTool проверяет, что инструмент разрешён. Пустой whitelist разрешает всё.
func (e *Enforcer) CheckTool(tool string) error {
	allowed := e.scopes.AllowedTools
	if len(allowed) == 0 || slices.Contains(allowed, tool) {
		return nil
	}
	return &Violation{
		Kind:    KindToolNotAllowed,
		Message: fmt.Sprintf("Tool %q is not allowed. Allowed tools: %s", tool, strings.Join(allowed, ", ")),
		Detail:  map[string]any{"tool": tool, "allowedTools": slices.Clone(allowed)},
	}
}

// CheckTime проверяет потолок времени. Лимит <= 0 — без ограничений.
func (e *Enforcer) CheckTime() error {
	limit := e.scopes.MaxExecutionTimeMs
	if limit <= 0 {
		return nil
	}
	elapsed := e.Elapsed().Milliseconds()
	if elapsed <= limit {
		return nil
	}
	return &Violation{
		Kind:    KindTimeLimitExceeded,
		Message: fmt.Sprintf("Execution time limit exceeded: %dms elapsed, limit %dms", elapsed, limit),
		Detail:  map[string]any{"elapsedMs": elapsed, "limitMs": limit},
	}
}

// CheckTokens проверяет, что current + additional не превышает потолок.
// Лимит <= 0 — без ограничений.
func (e *Enforcer) CheckTokens(usage UsageSource, additional int) error {
	limit := e.scopes.MaxTotalTokens
	if limit <= 0 {
		return nil
	}
	current := 0
	if usage != nil {
		current = usage.TotalTokenUsage().TotalTokens
	}
	if current+additional <= limit {
		return nil
	}
	return &Violation{
		Kind: KindTokenLimitExceeded,
		Message: fmt.Sprintf("Token limit exceeded: %d tokens used, %d requested, limit %d",
			current, additional, limit),
		Detail: map[string]any{"used": current, "requested": additional, "limit": limit},
	}
}

// CheckSubAgent проверяет право создавать под-агентов.
func (e *Enforcer) CheckSubAgent() error {
	if e.scopes.CanCreateSubAgents {
		return nil
	}
	return &Violation{
		Kind:    KindSubAgentNotAllowed,
		Message: "Creating sub-agents is not allowed for this agent",
	}
}

// PreStepCheck выполняет проверки перед шагом: время, затем модель, затем
// инструменты. Возвращает первое нарушение. Токены до шага не проверяются.
func (e *Enforcer) PreStepCheck(req Requirements) error {
	if err := e.CheckTime(); err != nil {
		return err
	}
	if req.Model != "" {
		if err := e.CheckModel(req.Model); err != nil {
			return err
		}
	}
	for _, tool := range req.Tools {
		if err := e.CheckTool(tool); err != nil {
			return err
		}
	}
	return nil
}

// PostStepCheck проверяет накопленный расход токенов после шага.
func (e *Enforcer) PostStepCheck(usage UsageSource) error {
	return e.CheckTokens(usage, 0)
}

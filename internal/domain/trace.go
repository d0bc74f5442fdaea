package domain

import "time"

// TokenUsage — расход токенов.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add прибавляет other к текущему расходу.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ContextEntry — запись шины контекста: результат одного шага.
type ContextEntry struct {
	StepID      string      `json:"stepId"`
	Type        string      `json:"type"`
	Output      any         `json:"output"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt time.Time   `json:"completedAt"`
	TokenUsage  *TokenUsage `json:"tokenUsage,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// ElapsedMs возвращает длительность шага в миллисекундах.
func (e ContextEntry) ElapsedMs() int64 {
	return e.CompletedAt.Sub(e.StartedAt).Milliseconds()
}

// ContextSnapshot — сериализуемый снимок шины контекста.
type ContextSnapshot struct {
	Trigger TriggerData    `json:"trigger"`
	Meta    map[string]any `json:"meta,omitempty"`
	Entries []ContextEntry `json:"entries"`
}

// StepResult — результат работы исполнителя шага.
type StepResult struct {
	// Output — значение, которое увидят последующие шаги как <stepId>.
	Output any `json:"output"`

	// TokenUsage — расход токенов шагом (nil, если токены не тратились).
	TokenUsage *TokenUsage `json:"tokenUsage,omitempty"`

	// Error — непустая строка означает, что шаг завершился ошибкой.
	Error string `json:"error,omitempty"`

	// NextBranch — ID ветки, выбранной router-шагом.
	NextBranch string `json:"nextBranch,omitempty"`

	// Meta — произвольные диагностические данные исполнителя.
	Meta map[string]any `json:"meta,omitempty"`
}

// StepStatus — итоговый статус шага в трассировке.
type StepStatus string

const (
	// StepStatusCompleted — шаг выполнен успешно.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusSkipped — условие шага оказалось ложным.
	StepStatusSkipped StepStatus = "skipped"

	// StepStatusError — шаг завершился ошибкой.
	StepStatusError StepStatus = "error"

	// StepStatusScopeViolation — нарушены ограничения времени или токенов.
	StepStatusScopeViolation StepStatus = "scope_violation"
)

// StepTrace — запись трассировки одного шага.
type StepTrace struct {
	StepID      string         `json:"stepId"`
	Type        string         `json:"type"`
	Status      StepStatus     `json:"status"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
	DurationMs  int64          `json:"durationMs"`
	Output      any            `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	TokenUsage  *TokenUsage    `json:"tokenUsage,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Diagnostic — нефатальная проблема при вычислении выражения.
type Diagnostic struct {
	StepID     string `json:"stepId,omitempty"`
	Expression string `json:"expression"`
	Message    string `json:"message"`
}

// FlowExecutionResult — итог выполнения flow.
type FlowExecutionResult struct {
	Success         bool             `json:"success"`
	Output          any              `json:"output"`
	Steps           []StepTrace      `json:"steps"`
	TotalTokenUsage TokenUsage       `json:"totalTokenUsage"`
	TotalDurationMs int64            `json:"totalDurationMs"`
	Error           string           `json:"error,omitempty"`
	ContextSnapshot *ContextSnapshot `json:"contextSnapshot,omitempty"`
	Diagnostics     []Diagnostic     `json:"diagnostics,omitempty"`
}

// CountByStatus возвращает количество шагов с указанным статусом.
func (r *FlowExecutionResult) CountByStatus(status StepStatus) int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

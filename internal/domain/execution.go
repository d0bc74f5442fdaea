package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — запись об одном выполнении flow агента.
//
// Execution создаётся когда:
// - Клиент отправляет запрос через API (синхронно или в очередь)
// - Scheduler запускает flow по расписанию
//
// Результат выполнения (трассировка шагов, снимок контекста) хранится целиком.
type Execution struct {
	// ID — уникальный идентификатор выполнения.
	ID uuid.UUID `json:"id"`

	// AgentID — идентификатор агента, которому принадлежит flow.
	AgentID string `json:"agent_id,omitempty"`

	// FlowName — имя flow (для поиска и логов).
	FlowName string `json:"flow_name,omitempty"`

	// Status — текущий статус.
	Status ExecutionStatus `json:"status"`

	// Request — исходный запрос на выполнение.
	Request ExecuteRequest `json:"request"`

	// Result — итог выполнения. Nil, пока выполнение не завершено.
	Result *FlowExecutionResult `json:"result,omitempty"`

	// Error — текст ошибки, если выполнение завершилось с FAILED.
	Error string `json:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности.
	// Для запусков по расписанию: "{schedule_name}_{next_due_at}".
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewExecution создаёт выполнение в статусе PENDING.
func NewExecution(req ExecuteRequest) *Execution {
	return &Execution{
		ID:        uuid.New(),
		AgentID:   req.AgentID,
		FlowName:  req.FlowName,
		Status:    ExecutionStatusPending,
		Request:   req,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если выполнение ещё не завершено.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// IsFinished возвращает true, если выполнение завершено.
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkRunning переводит выполнение в статус RUNNING.
func (e *Execution) MarkRunning() {
	now := time.Now()
	e.Status = ExecutionStatusRunning
	e.StartedAt = &now
}

// Complete фиксирует результат и переводит выполнение
// в SUCCEEDED или FAILED в зависимости от result.Success.
func (e *Execution) Complete(result *FlowExecutionResult) {
	e.Result = result
	if result != nil && result.Success {
		e.MarkSucceeded()
		return
	}
	msg := "execution failed"
	if result != nil && result.Error != "" {
		msg = result.Error
	}
	e.MarkFailed(msg)
}

// MarkSucceeded переводит выполнение в статус SUCCEEDED.
func (e *Execution) MarkSucceeded() {
	now := time.Now()
	e.Status = ExecutionStatusSucceeded
	e.FinishedAt = &now
}

// MarkFailed переводит выполнение в статус FAILED с ошибкой.
func (e *Execution) MarkFailed(err string) {
	now := time.Now()
	e.Status = ExecutionStatusFailed
	e.FinishedAt = &now
	e.Error = err
}

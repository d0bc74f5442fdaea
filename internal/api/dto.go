package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
)

// ExecutionResponse — выполнение в ответах API.
type ExecutionResponse struct {
	ID             uuid.UUID                   `json:"id"`
	AgentID        string                      `json:"agentId,omitempty"`
	FlowName       string                      `json:"flowName,omitempty"`
	Status         string                      `json:"status"`
	Result         *domain.FlowExecutionResult `json:"result,omitempty"`
	Error          string                      `json:"error,omitempty"`
	IdempotencyKey string                      `json:"idempotencyKey,omitempty"`
	StartedAt      *time.Time                  `json:"startedAt,omitempty"`
	FinishedAt     *time.Time                  `json:"finishedAt,omitempty"`
	CreatedAt      time.Time                   `json:"createdAt"`
	Warnings       []engine.Warning            `json:"warnings,omitempty"`
}

// withWarnings добавляет находки статической проверки, принятые при запуске.
func (r ExecutionResponse) withWarnings(warnings []engine.Warning) ExecutionResponse {
	r.Warnings = warnings
	return r
}

// ExecutionFromDomain конвертирует domain.Execution. Запрос не включается:
// flow может быть большим, а клиент его и так знает.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:             e.ID,
		AgentID:        e.AgentID,
		FlowName:       e.FlowName,
		Status:         string(e.Status),
		Result:         e.Result,
		Error:          e.Error,
		IdempotencyKey: e.IdempotencyKey,
		StartedAt:      e.StartedAt,
		FinishedAt:     e.FinishedAt,
		CreatedAt:      e.CreatedAt,
	}
}

// ValidateFlowResponse — результат POST /api/v1/flows/validate.
type ValidateFlowResponse struct {
	Valid    bool             `json:"valid"`
	Error    string           `json:"error,omitempty"`
	StepID   string           `json:"stepId,omitempty"`
	Warnings []engine.Warning `json:"warnings"`
}

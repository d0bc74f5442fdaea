package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
	"github.com/shaiso/AgentFlow/internal/repo"
	"github.com/shaiso/AgentFlow/internal/telemetry"
)

const maxRequestBody = 4 << 20

// IdempotencyHeader — заголовок ключа идемпотентности для асинхронных запусков.
const IdempotencyHeader = "Idempotency-Key"

// StrictParam включает отказ 422 для flow с ошибками статической проверки.
// Без него такие flow выполняются, а находки возвращаются в warnings.
const StrictParam = "strict"

// Execute выполняет flow синхронно и возвращает результат.
// POST /api/v1/executions
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	req, warnings, ok := h.decodeExecuteRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	exec := domain.NewExecution(*req)
	if h.store != nil {
		if err := h.store.Create(ctx, exec); err != nil {
			InternalError(w, h.logger, err)
			return
		}
	}

	logger := telemetry.WithExecutionID(telemetry.FromContext(ctx), exec.ID.String())
	exec.MarkRunning()

	result, err := h.runner.Execute(telemetry.WithLogger(ctx, logger), req)
	if err != nil {
		exec.MarkFailed(err.Error())
	} else {
		exec.Complete(result)
	}

	if h.store != nil {
		if err := h.store.Update(context.WithoutCancel(ctx), exec); err != nil {
			logger.Warn("failed to save execution result", "error", err)
		}
	}

	Success(w, ExecutionFromDomain(*exec).withWarnings(warnings))
}

// Submit сохраняет выполнение и ставит его в очередь worker.
// POST /api/v1/executions/async
//
// Повторный запрос с тем же Idempotency-Key возвращает существующее выполнение.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		Unavailable(w, "async execution requires a database")
		return
	}

	req, warnings, ok := h.decodeExecuteRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" {
		existing, err := h.store.GetByIdempotencyKey(ctx, key)
		if err == nil {
			Success(w, ExecutionFromDomain(*existing))
			return
		}
		if !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
	}

	exec := domain.NewExecution(*req)
	exec.IdempotencyKey = key

	if err := h.store.Create(ctx, exec); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			existing, getErr := h.store.GetByIdempotencyKey(ctx, key)
			if HandleRepoError(w, h.logger, getErr, "execution not found") {
				return
			}
			Success(w, ExecutionFromDomain(*existing))
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishExecutionPending(ctx, exec.ID); err != nil {
			// worker подберёт выполнение polling'ом
			h.logger.Warn("failed to publish execution.pending", "execution_id", exec.ID, "error", err)
		}
	}

	Accepted(w, ExecutionFromDomain(*exec).withWarnings(warnings))
}

// ListExecutions возвращает выполнения.
// GET /api/v1/executions?agent_id=...&status=...&limit=...&offset=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		Unavailable(w, "execution history requires a database")
		return
	}

	q := r.URL.Query()
	filter := repo.ExecutionFilter{AgentID: q.Get("agent_id"), Limit: 50}

	if s := q.Get("status"); s != "" {
		status, err := parseStatus(s)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		filter.Status = status
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), 50); err != nil {
		BadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		BadRequest(w, "invalid offset")
		return
	}

	executions, err := h.store.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	out := make([]ExecutionResponse, len(executions))
	for i, e := range executions {
		out[i] = ExecutionFromDomain(e)
	}
	List(w, out, len(out))
}

// GetExecution возвращает выполнение с результатом и трассировкой.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		Unavailable(w, "execution history requires a database")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	exec, err := h.store.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}
	Success(w, ExecutionFromDomain(*exec))
}

// decodeExecuteRequest читает запрос и отклоняет только неверную форму
// (тип триггера, maxSteps). Находки engine.Validate возвращаются как
// предупреждения: движок сам обрабатывает неизвестный entryPoint,
// ошибочные условия и неизвестные типы шагов по правилам abortOnError.
// При ok=false ответ уже отправлен.
func (h *Handler) decodeExecuteRequest(w http.ResponseWriter, r *http.Request) (*domain.ExecuteRequest, []engine.Warning, bool) {
	var req domain.ExecuteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return nil, nil, false
	}

	if req.Trigger.Type == "" {
		req.Trigger.Type = domain.TriggerManual
	}
	if !req.Trigger.Type.IsValid() {
		BadRequest(w, fmt.Sprintf("unknown trigger type %q", req.Trigger.Type))
		return nil, nil, false
	}
	if req.MaxSteps < 0 {
		BadRequest(w, "maxSteps must not be negative")
		return nil, nil, false
	}
	strict, err := boolParam(r.URL.Query().Get(StrictParam))
	if err != nil {
		BadRequest(w, err.Error())
		return nil, nil, false
	}

	warnings, err := h.runner.Validate(&req.Flow)
	if err != nil {
		if strict {
			invalidFlow(w, err)
			return nil, nil, false
		}
		warnings = append([]engine.Warning{validationWarning(err)}, warnings...)
	}
	return &req, warnings, true
}

// validationWarning превращает ошибку проверки в предупреждение с ID шага.
func validationWarning(err error) engine.Warning {
	warn := engine.Warning{Message: err.Error()}
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		warn.StepID = ve.StepID
		warn.Message = ve.Message
	}
	return warn
}

func boolParam(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", s)
	}
	return b, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// invalidFlow отправляет 422 с указанием шага, если он известен.
func invalidFlow(w http.ResponseWriter, err error) {
	detail := ErrorDetail{Code: ErrCodeInvalidFlow, Message: err.Error()}
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		detail.StepID = ve.StepID
	}
	JSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: detail})
}

func parseStatus(s string) (domain.ExecutionStatus, error) {
	status := domain.ExecutionStatus(strings.ToUpper(s))
	switch status {
	case domain.ExecutionStatusPending, domain.ExecutionStatusRunning,
		domain.ExecutionStatusSucceeded, domain.ExecutionStatusFailed:
		return status, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

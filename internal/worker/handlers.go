package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/mq"
	"github.com/shaiso/AgentFlow/internal/repo"
	"github.com/shaiso/AgentFlow/internal/telemetry"
)

// handleExecutionPending обрабатывает сообщение из executions.pending.
func (w *Worker) handleExecutionPending(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.ExecutionPendingPayload](msg)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrPermanent, err)
	}

	err = w.process(ctx, payload.ExecutionID)
	if isSkippable(err) {
		w.logger.Debug("execution skipped", "execution_id", payload.ExecutionID, "reason", err)
		return nil
	}
	return err
}

// isSkippable — выполнение не найдено или уже забрано: сообщение подтверждается.
func isSkippable(err error) bool {
	return errors.Is(err, ErrExecutionNotFound) || errors.Is(err, ErrExecutionNotPending)
}

// process забирает выполнение, запускает flow и сохраняет результат.
func (w *Worker) process(ctx context.Context, id uuid.UUID) error {
	exec, err := w.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
		}
		return fmt.Errorf("get execution: %w", err)
	}
	if exec.Status != domain.ExecutionStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrExecutionNotPending, id, exec.Status)
	}

	exec.MarkRunning()
	if err := w.store.ClaimPending(ctx, exec); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s claimed by another worker", ErrExecutionNotPending, id)
		}
		return fmt.Errorf("claim execution: %w", err)
	}

	logger := telemetry.WithAgentID(telemetry.WithExecutionID(w.logger, id.String()), exec.AgentID)
	logger.Info("execution started", "flow_name", exec.FlowName)

	runCtx := telemetry.WithLogger(ctx, logger)
	if w.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, w.timeout)
		defer cancel()
	}

	result, runErr := w.runner.Execute(runCtx, &exec.Request)
	if runErr != nil {
		exec.MarkFailed(runErr.Error())
	} else {
		exec.Complete(result)
	}

	// результат сохраняется и при остановке worker
	saveCtx := context.WithoutCancel(ctx)
	if err := w.store.Update(saveCtx, exec); err != nil {
		return fmt.Errorf("save execution result: %w", err)
	}

	logger.Info("execution finished",
		"status", exec.Status,
		"duration_ms", exec.Duration().Milliseconds(),
		"error", exec.Error,
	)

	w.publishCompletion(saveCtx, exec)
	return nil
}

// publishCompletion публикует execution.completed. Ошибка публикации
// не откатывает выполнение: результат уже в БД.
func (w *Worker) publishCompletion(ctx context.Context, exec *domain.Execution) {
	if w.publisher == nil {
		return
	}

	payload := mq.ExecutionCompletedPayload{
		ExecutionID: exec.ID,
		AgentID:     exec.AgentID,
		FlowName:    exec.FlowName,
		Status:      string(exec.Status),
		Error:       exec.Error,
		DurationMs:  exec.Duration().Milliseconds(),
	}
	if exec.Result != nil {
		payload.TotalTokens = exec.Result.TotalTokenUsage.TotalTokens
	}

	if err := w.publisher.PublishExecutionCompleted(ctx, payload); err != nil {
		w.logger.Warn("publish execution.completed failed", "execution_id", exec.ID, "error", err)
	}
}

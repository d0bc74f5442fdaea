package orchestrator

import (
	"sync"
	"time"

	"github.com/shaiso/AgentFlow/internal/bus"
	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/scope"
	"github.com/shaiso/AgentFlow/internal/telemetry"
)

// runState — состояние одного выполнения flow в памяти.
//
// Создаётся в начале ExecuteFlow и отбрасывается по его завершении.
// Содержит:
//   - шину контекста и проверку ограничений этого выполнения
//   - очередь шагов
//   - трассу, диагностику, output последнего успешного шага
type runState struct {
	flow     *domain.AgentFlow
	bus      *bus.Bus
	enforcer *scope.Enforcer
	queue    *workQueue
	now      func() time.Time

	traces     []domain.StepTrace
	lastOutput any
	flowErr    string
	iterations int

	// current — ID выполняемого шага, для привязки диагностики.
	current string

	mu          sync.Mutex
	diagnostics []domain.Diagnostic
}

func newRunState(flow *domain.AgentFlow, b *bus.Bus, enforcer *scope.Enforcer, now func() time.Time) *runState {
	return &runState{
		flow:     flow,
		bus:      b,
		enforcer: enforcer,
		queue:    newWorkQueue(initialQueue(flow)),
		now:      now,
	}
}

// diagnose получает ошибки вычисления выражений от Evaluator.
func (s *runState) diagnose(expr string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.diagnostics = append(s.diagnostics, domain.Diagnostic{
		StepID:     s.current,
		Expression: expr,
		Message:    err.Error(),
	})
	telemetry.ExpressionDiagnostics.Inc()
}

// note добавляет диагностику, не связанную с выражением.
func (s *runState) note(stepID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.diagnostics = append(s.diagnostics, domain.Diagnostic{StepID: stepID, Message: message})
}

func (s *runState) Diagnostics() []domain.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.diagnostics) == 0 {
		return nil
	}
	return append([]domain.Diagnostic(nil), s.diagnostics...)
}

// record добавляет запись трассы и обновляет метрики.
func (s *runState) record(trace domain.StepTrace) {
	if trace.StartedAt.IsZero() {
		trace.StartedAt = s.now()
	}
	if trace.CompletedAt.IsZero() {
		trace.CompletedAt = trace.StartedAt
	}
	trace.DurationMs = trace.CompletedAt.Sub(trace.StartedAt).Milliseconds()
	s.traces = append(s.traces, trace)

	stepType := trace.Type
	if stepType == "" {
		stepType = "unknown"
	}
	telemetry.StepExecutions.WithLabelValues(stepType, string(trace.Status)).Inc()
	if trace.Status == domain.StepStatusCompleted || trace.Status == domain.StepStatusError {
		telemetry.StepDuration.WithLabelValues(stepType).Observe(trace.CompletedAt.Sub(trace.StartedAt).Seconds())
	}
	if trace.TokenUsage != nil && trace.TokenUsage.TotalTokens > 0 {
		telemetry.TokensUsed.WithLabelValues(stepType).Add(float64(trace.TokenUsage.TotalTokens))
	}
}

// recordError записывает трассу ошибки без выполнения шага.
func (s *runState) recordError(stepID, stepType, message string) {
	s.record(domain.StepTrace{
		StepID: stepID,
		Type:   stepType,
		Status: domain.StepStatusError,
		Error:  message,
	})
}

// recordViolation записывает трассу нарушения ограничений и фиксирует ошибку flow.
func (s *runState) recordViolation(stepID, stepType string, v *scope.Violation) {
	meta := map[string]any{"violation": string(v.Kind)}
	if len(v.Detail) > 0 {
		meta["detail"] = v.Detail
	}
	s.record(domain.StepTrace{
		StepID: stepID,
		Type:   stepType,
		Status: domain.StepStatusScopeViolation,
		Error:  v.Message,
		Meta:   meta,
	})
	s.flowErr = v.Message
	telemetry.ScopeViolations.WithLabelValues(string(v.Kind)).Inc()
}

// Stats возвращает сводку по трассе.
func (s *runState) Stats() ExecutionStats {
	stats := ExecutionStats{
		Iterations: s.iterations,
		Pending:    s.queue.Len(),
	}
	for _, t := range s.traces {
		switch t.Status {
		case domain.StepStatusCompleted:
			stats.Completed++
		case domain.StepStatusSkipped:
			stats.Skipped++
		case domain.StepStatusError:
			stats.Failed++
		case domain.StepStatusScopeViolation:
			stats.Violations++
		}
	}
	return stats
}

// ExecutionStats — сводка выполнения для логов.
type ExecutionStats struct {
	Iterations int
	Completed  int
	Skipped    int
	Failed     int
	Violations int
	Pending    int
}

// result собирает итог выполнения.
func (s *runState) result(startedAt time.Time) *domain.FlowExecutionResult {
	return &domain.FlowExecutionResult{
		Success:         s.flowErr == "",
		Output:          s.lastOutput,
		Steps:           s.traces,
		TotalTokenUsage: s.bus.TotalTokenUsage(),
		TotalDurationMs: s.now().Sub(startedAt).Milliseconds(),
		Error:           s.flowErr,
		ContextSnapshot: s.bus.Snapshot(),
		Diagnostics:     s.Diagnostics(),
	}
}

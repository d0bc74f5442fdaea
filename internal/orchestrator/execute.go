package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shaiso/AgentFlow/internal/bus"
	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
	"github.com/shaiso/AgentFlow/internal/scope"
	"github.com/shaiso/AgentFlow/internal/steps"
	"github.com/shaiso/AgentFlow/internal/telemetry"
)

// DefaultMaxSteps — предел числа итераций по умолчанию.
const DefaultMaxSteps = 50

// Options — параметры одного выполнения flow.
type Options struct {
	AgentID  string
	FlowName string

	// ContinueOnError — продолжать после ошибки шага.
	// По умолчанию выполнение прерывается на первой ошибке.
	// Нарушения времени и токенов прерывают выполнение всегда.
	ContinueOnError bool

	// MaxSteps — предел числа итераций. 0 — DefaultMaxSteps.
	MaxSteps int

	// Registry — реестр исполнителей. Nil — steps.Global().
	Registry *steps.Registry

	// Logger — логгер. Nil — slog.Default().
	Logger *slog.Logger

	// Meta — глобальные метаданные (context.* в выражениях).
	Meta map[string]any

	// Clock — источник времени. Nil — time.Now.
	Clock func() time.Time
}

// ExecuteFlow выполняет flow один раз для одного триггера.
//
// Шаги выполняются строго последовательно. Ошибки шагов, паники
// исполнителей и ошибки выражений не выходят наружу: результат всегда
// возвращается, а причина неуспеха лежит в Error и трассе Steps.
func ExecuteFlow(
	ctx context.Context,
	flow *domain.AgentFlow,
	scopes domain.AgentScopes,
	trigger domain.TriggerData,
	deps *steps.Dependencies,
	opts Options,
) *domain.FlowExecutionResult {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	startedAt := now()

	if flow == nil || len(flow.Steps) == 0 {
		return &domain.FlowExecutionResult{Success: true, Steps: []domain.StepTrace{}}
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	registry := opts.Registry
	if registry == nil {
		registry = steps.Global()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithAgentID(logger, opts.AgentID)
	if opts.FlowName != "" {
		logger = logger.With("flow", opts.FlowName)
	}

	state := newRunState(
		flow,
		bus.New(trigger, opts.Meta),
		scope.NewEnforcer(scopes, scope.WithClock(now)),
		now,
	)
	runDeps := prepareDependencies(deps, logger, state)
	ev := runDeps.Evaluator

	logger.Info("flow execution started",
		"steps", len(flow.Steps),
		"queued", state.queue.Len(),
		"max_steps", maxSteps,
	)

	for {
		id, ok := state.queue.Pop()
		if !ok {
			break
		}
		if state.iterations >= maxSteps {
			state.flowErr = fmt.Errorf("%w (%d)", ErrMaxStepsReached, maxSteps).Error()
			logger.Warn("max steps limit reached", "max_steps", maxSteps, "next_step", id)
			break
		}
		state.iterations++

		if err := ctx.Err(); err != nil {
			state.flowErr = fmt.Errorf("%w: %v", ErrExecutionCancelled, err).Error()
			logger.Warn("flow execution cancelled", "error", err)
			break
		}

		step, ok := flow.StepByID(id)
		if !ok {
			msg := fmt.Errorf("%w: %q", ErrStepNotFound, id).Error()
			state.recordError(id, "", msg)
			logger.Warn("step not found", "step_id", id)
			if !opts.ContinueOnError {
				state.flowErr = msg
				break
			}
			continue
		}

		stepLog := telemetry.WithStepID(logger, step.ID)
		state.current = step.ID

		if err := state.enforcer.CheckTime(); err != nil {
			if v, ok := scope.AsViolation(err); ok {
				state.recordViolation(step.ID, step.Type, v)
				stepLog.Warn("scope violation before step", "kind", v.Kind, "fatal", v.Kind.IsFatal())
				break
			}
		}

		if step.Condition != "" && !ev.EvaluateCondition(step.Condition, state.bus.ResolutionContext()) {
			state.record(domain.StepTrace{
				StepID: step.ID,
				Type:   step.Type,
				Status: domain.StepStatusSkipped,
				Meta:   map[string]any{"condition": step.Condition},
			})
			stepLog.Debug("step skipped by condition")
			continue
		}

		exec, err := registry.Get(step.Type)
		if err != nil {
			msg := fmt.Errorf("%w: %q", ErrExecutorNotFound, step.Type).Error()
			state.recordError(step.ID, step.Type, msg)
			stepLog.Warn("executor not found", "step_type", step.Type)
			if !opts.ContinueOnError {
				state.flowErr = msg
				break
			}
			continue
		}

		stepStarted := now()
		result := invoke(ctx, exec, &steps.Request{
			Step:     step,
			Bus:      state.bus,
			Enforcer: state.enforcer,
			Deps:     runDeps,
		})
		stepCompleted := now()

		if err := state.bus.Write(domain.ContextEntry{
			StepID:      step.ID,
			Type:        step.Type,
			Output:      result.Output,
			StartedAt:   stepStarted,
			CompletedAt: stepCompleted,
			TokenUsage:  result.TokenUsage,
			Error:       result.Error,
		}); err != nil && result.Error == "" {
			result.Error = err.Error()
		}

		status := domain.StepStatusCompleted
		if result.Error != "" {
			status = domain.StepStatusError
		}
		state.record(domain.StepTrace{
			StepID:      step.ID,
			Type:        step.Type,
			Status:      status,
			StartedAt:   stepStarted,
			CompletedAt: stepCompleted,
			Output:      result.Output,
			Error:       result.Error,
			TokenUsage:  result.TokenUsage,
			Meta:        result.Meta,
		})

		if status == domain.StepStatusCompleted {
			state.lastOutput = result.Output
			stepLog.Info("step completed",
				"step_type", step.Type,
				"duration_ms", stepCompleted.Sub(stepStarted).Milliseconds(),
			)
		} else {
			stepLog.Warn("step failed", "step_type", step.Type, "error", result.Error)
		}

		if err := state.enforcer.PostStepCheck(state.bus); err != nil {
			if v, ok := scope.AsViolation(err); ok {
				state.recordViolation(step.ID, step.Type, v)
				stepLog.Warn("scope violation after step", "kind", v.Kind, "fatal", v.Kind.IsFatal())
				break
			}
		}

		if step.Type == steps.StepTypeRouter && result.NextBranch != "" {
			extendWithBranch(state, step.ID, result.NextBranch, stepLog)
		}

		if status == domain.StepStatusError && !opts.ContinueOnError {
			state.flowErr = result.Error
			break
		}
	}
	state.current = ""

	res := state.result(startedAt)
	stats := state.Stats()

	outcome := "success"
	if !res.Success {
		outcome = "failed"
	}
	telemetry.FlowExecutions.WithLabelValues(outcome).Inc()
	telemetry.FlowDuration.Observe(float64(res.TotalDurationMs) / 1000)

	logger.Info("flow execution finished",
		"success", res.Success,
		"error", res.Error,
		"completed", stats.Completed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"violations", stats.Violations,
		"pending", stats.Pending,
		"total_tokens", res.TotalTokenUsage.TotalTokens,
		"duration_ms", res.TotalDurationMs,
	)
	if stats.Pending > 0 {
		logger.Debug("steps left in queue", "step_ids", state.queue.Remaining())
	}

	return res
}

// prepareDependencies копирует зависимости выполнения и подключает
// сбор диагностики выражений к runState.
func prepareDependencies(deps *steps.Dependencies, logger *slog.Logger, state *runState) *steps.Dependencies {
	var d steps.Dependencies
	if deps != nil {
		d = *deps
	}
	if d.Logger == nil {
		d.Logger = logger
	}
	if d.Evaluator == nil {
		d.Evaluator = engine.NewEvaluator(d.Logger, state.diagnose)
	} else {
		d.Evaluator = d.Evaluator.WithDiagnostics(state.diagnose)
	}
	return &d
}

// invoke выполняет шаг. Ошибка и паника исполнителя превращаются
// в StepResult с Error и пустым output.
func invoke(ctx context.Context, exec steps.Executor, req *steps.Request) (result *domain.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			result = &domain.StepResult{Error: fmt.Sprintf("%v: %v", ErrStepPanicked, r)}
		}
	}()

	res, err := exec.Execute(ctx, req)
	if err != nil {
		return &domain.StepResult{Error: err.Error()}
	}
	if res == nil {
		return &domain.StepResult{}
	}
	return res
}

// extendWithBranch добавляет в хвост очереди цепочку от выбранной ветки,
// исключая уже выполненные и ожидающие шаги.
func extendWithBranch(state *runState, routerID, branch string, logger *slog.Logger) {
	if _, ok := state.flow.StepByID(branch); !ok {
		state.note(routerID, fmt.Sprintf("router selected unknown branch %q", branch))
		logger.Warn("router selected unknown branch", "branch", branch)
		return
	}

	chain := buildChainFrom(state.flow, branch)
	added := make([]string, 0, len(chain))
	for _, id := range chain {
		if state.bus.Has(id) || state.queue.Pending(id) || slices.Contains(added, id) {
			continue
		}
		state.queue.Push(id)
		added = append(added, id)
	}

	logger.Debug("router branch enqueued", "branch", branch, "added", added)
}

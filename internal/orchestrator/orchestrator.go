package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
	"github.com/shaiso/AgentFlow/internal/steps"
	"github.com/shaiso/AgentFlow/internal/telemetry"
)

// Orchestrator выполняет запросы ExecuteRequest.
//
// Orchestrator — общая точка входа для API, worker и CLI:
//   - Хранит замороженный реестр исполнителей
//   - Хранит внешние возможности (LLM, база знаний, инструменты)
//   - Для каждого запроса собирает Dependencies и Options
//   - Вызывает ExecuteFlow
//
// Безопасен для конкурентного использования: состояние выполнения
// создаётся заново на каждый запрос.
type Orchestrator struct {
	registry *steps.Registry
	deps     steps.Dependencies
	maxSteps int
	clock    func() time.Time
	logger   *slog.Logger

	active atomic.Int64
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Registry — реестр исполнителей (default: steps.DefaultRegistry()).
	// Замораживается в New.
	Registry *steps.Registry

	// Capabilities
	LLM       steps.LLMCaller
	Knowledge steps.KnowledgeSearcher
	Tools     steps.ToolRunner

	// MaxSteps — предел по умолчанию, если в запросе не задан (default: 50).
	MaxSteps int

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}
	registry.Freeze()

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("orchestrator ready",
		"executors", registry.Count(),
		"step_types", registry.Types(),
		"max_steps", maxSteps,
	)

	return &Orchestrator{
		registry: registry,
		deps: steps.Dependencies{
			LLM:       cfg.LLM,
			Knowledge: cfg.Knowledge,
			Tools:     cfg.Tools,
			Evaluator: engine.NewEvaluator(logger, nil),
			Logger:    logger,
		},
		maxSteps: maxSteps,
		clock:    cfg.Clock,
		logger:   logger,
	}
}

// Registry возвращает реестр исполнителей.
func (o *Orchestrator) Registry() *steps.Registry {
	return o.registry
}

// Execute выполняет запрос.
func (o *Orchestrator) Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	o.active.Add(1)
	defer o.active.Add(-1)

	deps := o.deps
	deps.AccountID = req.AccountID
	deps.ProviderOrder = req.ProviderOrder

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = o.maxSteps
	}

	logger := o.logger
	if l := ctxLogger(ctx); l != nil {
		logger = l
	}
	deps.Logger = logger

	return ExecuteFlow(ctx, &req.Flow, req.Scopes, req.Trigger, &deps, Options{
		AgentID:         req.AgentID,
		FlowName:        req.FlowName,
		ContinueOnError: !req.ShouldAbortOnError(),
		MaxSteps:        maxSteps,
		Registry:        o.registry,
		Logger:          logger,
		Meta:            req.Meta,
		Clock:           o.clock,
	}), nil
}

// Validate проверяет flow против реестра исполнителей.
func (o *Orchestrator) Validate(flow *domain.AgentFlow) ([]engine.Warning, error) {
	return engine.Validate(flow, o.registry)
}

// ActiveExecutions возвращает число выполняющихся сейчас запросов.
func (o *Orchestrator) ActiveExecutions() int64 {
	return o.active.Load()
}

// ctxLogger возвращает логгер, положенный в контекст через telemetry.WithLogger.
func ctxLogger(ctx context.Context) *slog.Logger {
	l, _ := telemetry.LoggerFrom(ctx)
	return l
}

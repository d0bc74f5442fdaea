package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
	"github.com/shaiso/AgentFlow/internal/repo"
)

// Runner выполняет и проверяет flow (orchestrator.Orchestrator).
type Runner interface {
	Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error)
	Validate(flow *domain.AgentFlow) ([]engine.Warning, error)
}

// ExecutionStore — хранилище выполнений (repo.ExecutionRepo).
type ExecutionStore interface {
	Create(ctx context.Context, e *domain.Execution) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Execution, error)
	List(ctx context.Context, f repo.ExecutionFilter) ([]domain.Execution, error)
	Update(ctx context.Context, e *domain.Execution) error
}

// PendingPublisher ставит выполнение в очередь (mq.Publisher).
type PendingPublisher interface {
	PublishExecutionPending(ctx context.Context, executionID uuid.UUID) error
}

// Handler — обработчики HTTP API.
type Handler struct {
	runner    Runner
	store     ExecutionStore
	publisher PendingPublisher
	logger    *slog.Logger
}

// Config — зависимости Handler. Store и Publisher опциональны: без них
// доступны только синхронное выполнение и валидация.
type Config struct {
	Runner    Runner
	Store     ExecutionStore
	Publisher PendingPublisher
	Logger    *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runner:    cfg.Runner,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

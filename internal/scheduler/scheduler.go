package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/repo"
	"github.com/shaiso/AgentFlow/internal/telemetry"
)

// ExecutionStore — хранилище выполнений (repo.ExecutionRepo).
type ExecutionStore interface {
	Create(ctx context.Context, e *domain.Execution) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Execution, error)
}

// PendingPublisher ставит выполнение в очередь (mq.Publisher).
type PendingPublisher interface {
	PublishExecutionPending(ctx context.Context, executionID uuid.UUID) error
}

// Runner выполняет flow напрямую, без очереди.
type Runner interface {
	Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error)
}

// Leader решает, должен ли этот процесс срабатывать (repo.AdvisoryLock).
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// Исходы срабатывания для метрики ScheduleFires.
const (
	outcomeQueued    = "queued"
	outcomeDuplicate = "duplicate"
	outcomeExecuted  = "executed"
	outcomeFailed    = "failed"
)

// Scheduler срабатывает по расписаниям и запускает их flow с триггером scheduled.
type Scheduler struct {
	mu        sync.Mutex
	schedules []domain.Schedule

	store     ExecutionStore
	publisher PendingPublisher
	runner    Runner
	leader    Leader
	interval  time.Duration
	clock     func() time.Time
	logger    *slog.Logger
}

// Config — конфигурация Scheduler.
//
// Нужен Store (выполнения уходят worker'ам) или Runner (выполнение на месте).
// Если заданы оба, используется Store.
type Config struct {
	Schedules []domain.Schedule
	Store     ExecutionStore
	Publisher PendingPublisher // опционально: без него worker найдёт выполнение polling'ом
	Runner    Runner
	Leader    Leader // опционально: nil означает единственный экземпляр

	// TickInterval — период проверки расписаний (default: 1s).
	TickInterval time.Duration

	Clock  func() time.Time
	Logger *slog.Logger
}

// New создаёт Scheduler и вычисляет первое время срабатывания каждого
// включённого расписания.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil && cfg.Runner == nil {
		return nil, errors.New("scheduler needs an execution store or a runner")
	}

	s := &Scheduler{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		runner:    cfg.Runner,
		leader:    cfg.Leader,
		interval:  cfg.TickInterval,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	now := s.clock()
	s.schedules = make([]domain.Schedule, len(cfg.Schedules))
	for i, sched := range cfg.Schedules {
		if err := Validate(&sched); err != nil {
			return nil, err
		}
		if sched.Enabled {
			next, err := NextDue(&sched, now)
			if err != nil {
				return nil, fmt.Errorf("schedule %s: %w", sched.Name, err)
			}
			sched.NextDueAt = &next
		}
		s.schedules[i] = sched
	}
	return s, nil
}

// Schedules возвращает копию текущего состояния расписаний.
func (s *Scheduler) Schedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Schedule(nil), s.schedules...)
}

// Run проверяет расписания каждые TickInterval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "schedules", len(s.schedules), "tick", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if !s.isLeader(ctx) {
				continue
			}
			s.Tick(ctx)
		}
	}
}

func (s *Scheduler) isLeader(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}
	ok, err := s.leader.TryAcquire(ctx)
	if err != nil {
		s.logger.Warn("leader election failed", "error", err)
		return false
	}
	return ok
}

// Tick запускает все расписания, время которых наступило. Возвращает число
// срабатываний. Ошибка одного расписания не мешает остальным: оно будет
// повторено на следующем тике с тем же ключом идемпотентности.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	fired := 0
	for i := range s.schedules {
		sched := &s.schedules[i]
		if !sched.IsDue(now) {
			continue
		}

		logger := s.logger.With("schedule", sched.Name, "due_at", sched.NextDueAt.Format(time.RFC3339))

		id, outcome, err := s.fire(ctx, sched, logger)
		telemetry.ScheduleFires.WithLabelValues(outcome).Inc()
		if err != nil {
			logger.Error("failed to fire schedule", "error", err)
			continue
		}

		// отсчёт от now, а не от due: после простоя пропущенные срабатывания не догоняются
		next, err := NextDue(sched, now)
		if err != nil {
			logger.Error("failed to calculate next due, disabling schedule", "error", err)
			sched.Enabled = false
			continue
		}
		sched.RecordRun(id, now, next)
		fired++

		logger.Info("schedule fired",
			"execution_id", id,
			"outcome", outcome,
			"next_due_at", next.Format(time.RFC3339),
		)
	}
	return fired
}

// fire создаёт выполнение для одного срабатывания.
func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, logger *slog.Logger) (uuid.UUID, string, error) {
	req := scheduledRequest(sched)
	key := IdempotencyKey(sched.Name, *sched.NextDueAt)

	if s.store == nil {
		return s.runNow(ctx, &req, logger)
	}

	existing, err := s.store.GetByIdempotencyKey(ctx, key)
	if err == nil {
		return existing.ID, outcomeDuplicate, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return uuid.Nil, outcomeFailed, fmt.Errorf("check idempotency: %w", err)
	}

	exec := domain.NewExecution(req)
	exec.IdempotencyKey = key
	if err := s.store.Create(ctx, exec); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			existing, getErr := s.store.GetByIdempotencyKey(ctx, key)
			if getErr != nil {
				return uuid.Nil, outcomeFailed, fmt.Errorf("load duplicate execution: %w", getErr)
			}
			return existing.ID, outcomeDuplicate, nil
		}
		return uuid.Nil, outcomeFailed, fmt.Errorf("create execution: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishExecutionPending(ctx, exec.ID); err != nil {
			logger.Warn("failed to publish execution.pending", "execution_id", exec.ID, "error", err)
		}
	}
	return exec.ID, outcomeQueued, nil
}

func (s *Scheduler) runNow(ctx context.Context, req *domain.ExecuteRequest, logger *slog.Logger) (uuid.UUID, string, error) {
	id := uuid.New()
	logger = telemetry.WithExecutionID(logger, id.String())

	result, err := s.runner.Execute(telemetry.WithLogger(ctx, logger), req)
	if err != nil {
		return uuid.Nil, outcomeFailed, fmt.Errorf("execute flow: %w", err)
	}
	if !result.Success {
		logger.Warn("scheduled flow failed", "error", result.Error)
	}
	return id, outcomeExecuted, nil
}

// IdempotencyKey — ключ выполнения для срабатывания расписания в момент due.
func IdempotencyKey(name string, due time.Time) string {
	return fmt.Sprintf("%s_%d", name, due.Unix())
}

// scheduledRequest копирует запрос расписания и выставляет триггер scheduled.
// Имя расписания и плановое время доступны во flow как trigger.metadata.
func scheduledRequest(sched *domain.Schedule) domain.ExecuteRequest {
	req := sched.Request
	req.Trigger = sched.Request.Trigger.Clone()
	req.Trigger.Type = domain.TriggerScheduled
	if req.Trigger.Metadata == nil {
		req.Trigger.Metadata = make(map[string]any, 2)
	}
	req.Trigger.Metadata["schedule"] = sched.Name
	req.Trigger.Metadata["dueAt"] = sched.NextDueAt.UTC().Format(time.RFC3339)
	if req.FlowName == "" {
		req.FlowName = sched.Name
	}
	return req
}

package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/mq"
)

// Значения по умолчанию.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 20
	defaultPrefetch     = 4
)

// ExecutionStore — хранилище выполнений (repo.ExecutionRepo).
type ExecutionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	ListPending(ctx context.Context, limit int) ([]domain.Execution, error)
	ClaimPending(ctx context.Context, e *domain.Execution) error
	Update(ctx context.Context, e *domain.Execution) error
}

// Runner выполняет flow (orchestrator.Orchestrator).
type Runner interface {
	Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error)
}

// CompletionPublisher публикует итог выполнения (mq.Publisher).
type CompletionPublisher interface {
	PublishExecutionCompleted(ctx context.Context, payload mq.ExecutionCompletedPayload) error
}

// Worker выполняет отложенные выполнения flow.
//
// Получает ID выполнений из очереди executions.pending и, на случай
// потерянных сообщений, периодически забирает PENDING записи из БД.
// Экземпляров может быть несколько: выполнение забирается атомарно
// (ClaimPending), так что каждое выполняется один раз.
type Worker struct {
	store     ExecutionStore
	runner    Runner
	publisher CompletionPublisher
	conn      *mq.Connection

	pollInterval time.Duration
	batchSize    int
	prefetch     int
	timeout      time.Duration

	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	Store     ExecutionStore
	Runner    Runner
	Publisher CompletionPublisher // опционально

	// Conn — соединение с RabbitMQ. Nil — только polling.
	Conn *mq.Connection

	PollInterval time.Duration // default: 10s
	BatchSize    int           // default: 20
	Prefetch     int           // параллельных выполнений из очереди (default: 4)

	// ExecutionTimeout — предел одного выполнения. 0 — без предела
	// (кроме maxExecutionTimeMs из scopes).
	ExecutionTimeout time.Duration

	Logger *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		store:        cfg.Store,
		runner:       cfg.Runner,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		prefetch:     cfg.Prefetch,
		timeout:      cfg.ExecutionTimeout,
		logger:       logger,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.prefetch <= 0 {
		w.prefetch = defaultPrefetch
	}
	return w
}

// Start запускает потребителей и polling. Не блокирует.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"prefetch", w.prefetch,
	)

	if w.conn != nil {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueExecutionsPending,
			Handler:  w.handleExecutionPending,
			Prefetch: w.prefetch,
		})
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("consumer stopped", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()
}

// Stop останавливает Worker и ждёт завершения текущих выполнений.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// сразу подбираем то, что накопилось, пока worker был выключен
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll обрабатывает PENDING выполнения из БД.
func (w *Worker) poll(ctx context.Context) {
	pending, err := w.store.ListPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("list pending executions failed", "error", err)
		return
	}
	if len(pending) > 0 {
		w.logger.Debug("poll found pending executions", "count", len(pending))
	}

	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		err := w.process(ctx, pending[i].ID)
		if err != nil && !isSkippable(err) {
			w.logger.Error("process execution failed", "execution_id", pending[i].ID, "error", err)
		}
	}
}

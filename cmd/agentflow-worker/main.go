// AgentFlow Worker — выполняет асинхронные выполнения.
//
// Worker:
//   - Получает execution.pending из RabbitMQ и раз в PollInterval ищет
//     PENDING выполнения в базе
//   - Атомарно захватывает выполнение и запускает flow
//   - Сохраняет результат и публикует execution.completed
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/AgentFlow/internal/mq"
	"github.com/shaiso/AgentFlow/internal/repo"
	"github.com/shaiso/AgentFlow/internal/setup"
	"github.com/shaiso/AgentFlow/internal/telemetry"
	"github.com/shaiso/AgentFlow/internal/worker"
)

func main() {
	envErr := setup.LoadEnv()

	logger := telemetry.SetupLogger()
	logger.Info("starting agentflow-worker")
	if envErr != nil {
		logger.Warn("failed to load .env", "error", envErr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	runner, err := setup.OrchestratorFromEnv(ctx, logger)
	if err != nil {
		logger.Error("failed to set up orchestrator", "error", err)
		os.Exit(1)
	}

	cfg := worker.Config{
		Store:  repo.NewExecutionRepo(pool),
		Runner: runner,
		Logger: logger,
	}

	conn, err := mq.Dial(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer conn.Close()
		if err := mq.SetupTopology(conn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		cfg.Conn = conn
		cfg.Publisher = mq.NewPublisher(conn, logger)
		logger.Info("RabbitMQ connected")
	}

	w := worker.New(cfg)
	w.Start(ctx)

	addr := setup.Addr("WORKER_PORT", "8082")
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, setup.OpsMux()); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()
	logger.Info("agentflow-worker stopped")
}

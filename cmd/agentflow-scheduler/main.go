// AgentFlow Scheduler — запускает flow по расписаниям из SCHEDULES_FILE.
//
// С PostgreSQL выполнения создаются в базе и отдаются worker'ам, а лидер
// выбирается через pg_try_advisory_lock. Без базы единственный экземпляр
// выполняет flow сам.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/AgentFlow/internal/mq"
	"github.com/shaiso/AgentFlow/internal/repo"
	"github.com/shaiso/AgentFlow/internal/scheduler"
	"github.com/shaiso/AgentFlow/internal/setup"
	"github.com/shaiso/AgentFlow/internal/telemetry"
)

const schedLockKey int64 = 424242

func main() {
	envErr := setup.LoadEnv()

	logger := telemetry.SetupLogger()
	logger.Info("starting agentflow-scheduler")
	if envErr != nil {
		logger.Warn("failed to load .env", "error", envErr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path := os.Getenv("SCHEDULES_FILE")
	if path == "" {
		logger.Error("SCHEDULES_FILE is not set")
		os.Exit(1)
	}
	schedules, err := scheduler.LoadFile(path)
	if err != nil {
		logger.Error("failed to load schedules", "path", path, "error", err)
		os.Exit(1)
	}

	cfg := scheduler.Config{Schedules: schedules, Logger: logger}

	var lock *repo.AdvisoryLock
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Warn("database not available, flows will run in the scheduler process", "error", err)
		runner, err := setup.OrchestratorFromEnv(ctx, logger)
		if err != nil {
			logger.Error("failed to set up orchestrator", "error", err)
			os.Exit(1)
		}
		cfg.Runner = runner
	} else {
		defer pool.Close()
		if err := repo.Migrate(ctx, pool); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		lock = repo.NewAdvisoryLock(pool, schedLockKey)
		cfg.Store = repo.NewExecutionRepo(pool)
		cfg.Leader = lock
		logger.Info("database connected")

		conn, err := mq.Dial(mq.URLFromEnv(), logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, workers will pick executions by polling", "error", err)
		} else {
			defer conn.Close()
			if err := mq.SetupTopology(conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			cfg.Publisher = mq.NewPublisher(conn, logger)
		}
	}

	sched, err := scheduler.New(cfg)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	addr := setup.Addr("SCHEDULER_PORT", "8081")
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, setup.OpsMux()); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped with error", "error", err)
	}

	if lock != nil {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("failed to release leader lock", "error", err)
		}
	}
	logger.Info("agentflow-scheduler stopped")
}

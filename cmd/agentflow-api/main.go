// AgentFlow API — HTTP сервер выполнения агентских flow.
//
// Без PostgreSQL доступны только синхронное выполнение и валидация,
// без RabbitMQ асинхронные выполнения подбираются worker'ом через polling.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/AgentFlow/internal/api"
	"github.com/shaiso/AgentFlow/internal/mq"
	"github.com/shaiso/AgentFlow/internal/repo"
	"github.com/shaiso/AgentFlow/internal/setup"
	"github.com/shaiso/AgentFlow/internal/telemetry"
)

func main() {
	envErr := setup.LoadEnv()

	logger := telemetry.SetupLogger()
	logger.Info("starting agentflow-api")
	if envErr != nil {
		logger.Warn("failed to load .env", "error", envErr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner, err := setup.OrchestratorFromEnv(ctx, logger)
	if err != nil {
		logger.Error("failed to set up orchestrator", "error", err)
		os.Exit(1)
	}

	cfg := api.Config{Runner: runner, Logger: logger}

	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Warn("database not available, execution history disabled", "error", err)
	} else {
		defer pool.Close()
		if err := repo.Migrate(ctx, pool); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		cfg.Store = repo.NewExecutionRepo(pool)
		logger.Info("database connected")
	}

	conn, err := mq.Dial(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, async executions rely on worker polling", "error", err)
	} else {
		defer conn.Close()
		if err := mq.SetupTopology(conn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		cfg.Publisher = mq.NewPublisher(conn, logger)
		logger.Info("RabbitMQ connected")
	}

	mux := setup.OpsMux()
	api.NewHandler(cfg).RegisterRoutes(mux)

	addr := setup.Addr("API_PORT", "8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", "active_executions", runner.ActiveExecutions())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// Package setup собирает Orchestrator с возможностями из окружения.
//
// Используется всеми бинарниками и локальной командой CLI run.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/shaiso/AgentFlow/internal/knowledge"
	"github.com/shaiso/AgentFlow/internal/llm"
	"github.com/shaiso/AgentFlow/internal/orchestrator"
	"github.com/shaiso/AgentFlow/internal/tools"
)

// Capabilities — возможности, доступные шагам flow.
type Capabilities struct {
	LLM       *llm.Client
	Knowledge *knowledge.Store
	Tools     *tools.Catalog
}

// CapabilitiesFromEnv создаёт возможности:
//
//	LLM_BASE_URL, LLM_API_KEY, LLM_PROVIDER — провайдер модели
//	KNOWLEDGE_PATH  — каталог базы знаний (пусто — в памяти)
//	KNOWLEDGE_DIR   — .md/.txt файлы для загрузки в коллекцию default
//	TOOLS_FILE      — YAML с webhook-инструментами
func CapabilitiesFromEnv(ctx context.Context, logger *slog.Logger) (*Capabilities, error) {
	llmCfg := llm.ConfigFromEnv()
	llmCfg.Logger = logger
	client, err := llm.NewClient(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	store, err := knowledge.NewStore(knowledge.Config{
		Path:     os.Getenv("KNOWLEDGE_PATH"),
		Compress: true,
		Embed:    knowledge.EmbeddingFromEnv(),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: %w", err)
	}
	if dir := os.Getenv("KNOWLEDGE_DIR"); dir != "" {
		n, err := store.LoadDir(ctx, knowledge.DefaultStoreID, dir, knowledge.DefaultChunkSize)
		if err != nil {
			return nil, fmt.Errorf("load knowledge dir: %w", err)
		}
		logger.Info("knowledge loaded", "dir", dir, "chunks", n)
	}

	catalog := tools.NewCatalog(logger)
	tools.RegisterBuiltins(catalog, time.Now)
	if path := os.Getenv("TOOLS_FILE"); path != "" {
		if _, err := catalog.LoadFile(path); err != nil {
			return nil, err
		}
	}

	return &Capabilities{LLM: client, Knowledge: store, Tools: catalog}, nil
}

// Orchestrator создаёт Orchestrator поверх возможностей.
// MAX_STEPS задаёт предел итераций по умолчанию.
func (c *Capabilities) Orchestrator(logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	maxSteps := 0
	if v := os.Getenv("MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_STEPS %q", v)
		}
		maxSteps = n
	}

	return orchestrator.New(orchestrator.Config{
		LLM:       c.LLM,
		Knowledge: c.Knowledge,
		Tools:     c.Tools,
		MaxSteps:  maxSteps,
		Logger:    logger,
	}), nil
}

// OrchestratorFromEnv — CapabilitiesFromEnv и Orchestrator одним вызовом.
func OrchestratorFromEnv(ctx context.Context, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	caps, err := CapabilitiesFromEnv(ctx, logger)
	if err != nil {
		return nil, err
	}
	return caps.Orchestrator(logger)
}

package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
	"github.com/shaiso/AgentFlow/internal/scope"
)

// StepTypeRAG — тип шага поиска в базе знаний.
const StepTypeRAG = "rag"

const (
	defaultTopK     = 5
	defaultMinScore = 0.3
)

// ragConfig — конфигурация rag-шага.
type ragConfig struct {
	VectorStoreIDs []string `mapstructure:"vectorStoreIds"`
	TopK           int      `mapstructure:"topK"`
	MinScore       *float64 `mapstructure:"minScore"`
}

// RAGExecutor — шаг поиска фрагментов в базе знаний.
//
// Запрос берётся из inputs.query, затем inputs.user_message, затем
// trigger.content.
//
// Output:
//
//	{
//	    "chunks":  [{"content": "...", "score": 0.82, "source": "faq.md"}],
//	    "context": "chunk 1\n\nchunk 2",
//	    "query":   "how to reset password"
//	}
type RAGExecutor struct{}

// NewRAGExecutor создаёт RAGExecutor.
func NewRAGExecutor() *RAGExecutor {
	return &RAGExecutor{}
}

// Type возвращает тип шага.
func (e *RAGExecutor) Type() string {
	return StepTypeRAG
}

// Execute выполняет поиск.
func (e *RAGExecutor) Execute(ctx context.Context, req *Request) (*domain.StepResult, error) {
	var cfg ragConfig
	if err := DecodeConfig(req.Step.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	minScore := defaultMinScore
	if cfg.MinScore != nil {
		minScore = *cfg.MinScore
	}

	if err := req.PreStepCheck(scope.Requirements{}); err != nil {
		return violationResult(err), nil
	}

	inputs := req.ResolveInputs()
	query := ragQuery(req, inputs)
	if query == "" {
		return &domain.StepResult{
			Output: ragOutput(nil, ""),
			Error:  "No query provided for RAG step",
		}, nil
	}

	if req.Deps == nil || req.Deps.Knowledge == nil {
		return nil, fmt.Errorf("%w: knowledge", ErrCapabilityMissing)
	}

	result, err := req.Deps.Knowledge.SearchKnowledge(ctx, domain.KnowledgeQuery{
		Query:          query,
		VectorStoreIDs: cfg.VectorStoreIDs,
		TopK:           cfg.TopK,
		MinScore:       minScore,
		AccountID:      req.AccountID(),
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	var usage *domain.TokenUsage
	if result.TotalTokens > 0 {
		usage = &domain.TokenUsage{PromptTokens: result.TotalTokens, TotalTokens: result.TotalTokens}
	}

	return &domain.StepResult{
		Output:     ragOutput(result.Chunks, query),
		TokenUsage: usage,
		Meta: map[string]any{
			"topK":       cfg.TopK,
			"minScore":   minScore,
			"chunkCount": len(result.Chunks),
		},
	}, nil
}

// ragQuery выбирает текст запроса по приоритету источников.
func ragQuery(req *Request, inputs engine.Vars) string {
	for _, key := range []string{"query", "user_message"} {
		if v, ok := inputs[key]; ok {
			if s := strings.TrimSpace(engine.Stringify(v)); s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(req.TriggerContent())
}

func ragOutput(chunks []domain.KnowledgeChunk, query string) map[string]any {
	items := make([]any, 0, len(chunks))
	contents := make([]string, 0, len(chunks))
	for _, c := range chunks {
		items = append(items, map[string]any{
			"content": c.Content,
			"score":   c.Score,
			"source":  c.Source,
		})
		contents = append(contents, c.Content)
	}
	return map[string]any{
		"chunks":  items,
		"context": strings.Join(contents, "\n\n"),
		"query":   query,
	}
}

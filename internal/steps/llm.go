package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/scope"
)

// StepTypeLLM — тип шага вызова языковой модели.
const StepTypeLLM = "llm"

// llmConfig — конфигурация llm-шага.
//
//	{
//	    "model": "openai/gpt-4o-mini",
//	    "systemPrompt": "You are a support agent for {{ context.company }}",
//	    "temperature": 0.2,
//	    "maxTokens": 512,
//	    "responseFormat": "json"
//	}
type llmConfig struct {
	Model          string   `mapstructure:"model"`
	SystemPrompt   string   `mapstructure:"systemPrompt"`
	Temperature    *float64 `mapstructure:"temperature"`
	MaxTokens      int      `mapstructure:"maxTokens"`
	ResponseFormat string   `mapstructure:"responseFormat"`
	OutputSchema   any      `mapstructure:"outputSchema"`
}

// LLMExecutor — шаг вызова языковой модели.
//
// Inputs склеиваются в сообщение пользователя строками "key: value",
// systemPrompt вычисляется как шаблон. При responseFormat == "json"
// или заданном outputSchema ответ разбирается как JSON; если разобрать
// не удалось, output — исходная строка.
type LLMExecutor struct{}

// NewLLMExecutor создаёт LLMExecutor.
func NewLLMExecutor() *LLMExecutor {
	return &LLMExecutor{}
}

// Type возвращает тип шага.
func (e *LLMExecutor) Type() string {
	return StepTypeLLM
}

// Execute вызывает модель.
func (e *LLMExecutor) Execute(ctx context.Context, req *Request) (*domain.StepResult, error) {
	var cfg llmConfig
	if err := DecodeConfig(req.Step.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	if err := req.PreStepCheck(scope.Requirements{Model: cfg.Model}); err != nil {
		return violationResult(err), nil
	}

	if req.Deps == nil || req.Deps.LLM == nil {
		return nil, fmt.Errorf("%w: llm", ErrCapabilityMissing)
	}

	inputs := req.ResolveInputs()
	ns := req.Namespace()

	llmReq := domain.LLMRequest{
		Model:          cfg.Model,
		SystemPrompt:   req.Evaluator().ResolveString(cfg.SystemPrompt, ns),
		Messages:       []domain.LLMMessage{{Role: "user", Content: userMessage(req, inputs)}},
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		ResponseFormat: cfg.ResponseFormat,
		AccountID:      req.AccountID(),
		ProviderOrder:  req.Deps.ProviderOrder,
	}

	resp, err := req.Deps.LLM.CallLLM(ctx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}

	var output any = resp.Content
	if cfg.ResponseFormat == "json" || cfg.OutputSchema != nil {
		if parsed, ok := ParseJSONLoose(resp.Content); ok {
			output = parsed
		} else {
			req.Logger().Debug("llm response is not valid JSON, keeping raw text")
		}
	}

	usage := resp.Usage
	meta := map[string]any{
		"model":          cfg.Model,
		"responseFormat": cfg.ResponseFormat,
	}
	if cfg.Temperature != nil {
		meta["temperature"] = *cfg.Temperature
	}
	if resp.Provider != "" {
		meta["provider"] = resp.Provider
	}

	return &domain.StepResult{
		Output:     output,
		TokenUsage: &usage,
		Meta:       meta,
	}, nil
}

// ParseJSONLoose пытается разобрать ответ модели как JSON.
// Markdown-ограждение ```json ... ``` снимается.
func ParseJSONLoose(s string) (any, bool) {
	text := strings.TrimSpace(s)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return nil, false
	}

	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, false
	}
	return out, true
}

package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/scope"
)

// StepTypeRouter — тип шага ветвления.
const StepTypeRouter = "router"

// Режимы router-шага.
const (
	RouterModeCondition = "condition"
	RouterModeLLM       = "llm"
)

type routeConfig struct {
	Condition string `mapstructure:"condition"`
	Target    string `mapstructure:"target"`
}

type branchConfig struct {
	ID          string `mapstructure:"id"`
	Description string `mapstructure:"description"`
}

type routerConfig struct {
	Mode          string         `mapstructure:"mode"`
	Routes        []routeConfig  `mapstructure:"routes"`
	DefaultTarget string         `mapstructure:"defaultTarget"`
	Branches      []branchConfig `mapstructure:"branches"`
	Model         string         `mapstructure:"model"`
	SystemPrompt  string         `mapstructure:"systemPrompt"`
	Temperature   *float64       `mapstructure:"temperature"`
}

// RouterExecutor — шаг выбора ветки.
//
// Режим condition (по умолчанию): routes проверяются по порядку,
// первая истинная condition выбирает target; иначе defaultTarget.
//
//	{
//	    "routes": [
//	        {"condition": "{{ classify.intent == 'billing' }}", "target": "billing"},
//	        {"condition": "{{ classify.intent == 'tech' }}", "target": "tech-support"}
//	    ],
//	    "defaultTarget": "general"
//	}
//
// Режим llm: модель выбирает одну из branches по описанию.
//
//	{
//	    "mode": "llm",
//	    "branches": [
//	        {"id": "billing", "description": "Payments, invoices, refunds"},
//	        {"id": "general", "description": "Everything else"}
//	    ]
//	}
//
// Выбранная ветка возвращается в NextBranch и как output.
type RouterExecutor struct{}

// NewRouterExecutor создаёт RouterExecutor.
func NewRouterExecutor() *RouterExecutor {
	return &RouterExecutor{}
}

// Type возвращает тип шага.
func (e *RouterExecutor) Type() string {
	return StepTypeRouter
}

// Execute выбирает ветку.
func (e *RouterExecutor) Execute(ctx context.Context, req *Request) (*domain.StepResult, error) {
	var cfg routerConfig
	if err := DecodeConfig(req.Step.Config, &cfg); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case "", RouterModeCondition:
		return e.routeByCondition(req, &cfg), nil
	case RouterModeLLM:
		return e.routeByLLM(ctx, req, &cfg)
	default:
		return nil, fmt.Errorf("%w: unknown router mode %q", ErrInvalidConfig, cfg.Mode)
	}
}

func (e *RouterExecutor) routeByCondition(req *Request, cfg *routerConfig) *domain.StepResult {
	ns := req.InputNamespace(req.ResolveInputs())
	ev := req.Evaluator()

	for i, route := range cfg.Routes {
		if ev.EvaluateCondition(route.Condition, ns) {
			return &domain.StepResult{
				Output:     route.Target,
				NextBranch: route.Target,
				Meta:       map[string]any{"mode": RouterModeCondition, "matchedRoute": i},
			}
		}
	}

	result := &domain.StepResult{
		Meta: map[string]any{"mode": RouterModeCondition, "fallback": true},
	}
	if cfg.DefaultTarget != "" {
		result.Output = cfg.DefaultTarget
		result.NextBranch = cfg.DefaultTarget
	}
	return result
}

func (e *RouterExecutor) routeByLLM(ctx context.Context, req *Request, cfg *routerConfig) (*domain.StepResult, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	if err := req.PreStepCheck(scope.Requirements{Model: model}); err != nil {
		return violationResult(err), nil
	}

	if len(cfg.Branches) == 0 {
		return nil, fmt.Errorf("%w: llm router requires branches", ErrInvalidConfig)
	}
	if req.Deps == nil || req.Deps.LLM == nil {
		return nil, fmt.Errorf("%w: llm", ErrCapabilityMissing)
	}

	inputs := req.ResolveInputs()
	prompt := routerPrompt(req.Evaluator().ResolveString(cfg.SystemPrompt, req.Namespace()), cfg.Branches)

	resp, err := req.Deps.LLM.CallLLM(ctx, domain.LLMRequest{
		Model:         model,
		SystemPrompt:  prompt,
		Messages:      []domain.LLMMessage{{Role: "user", Content: userMessage(req, inputs)}},
		Temperature:   cfg.Temperature,
		AccountID:     req.AccountID(),
		ProviderOrder: req.Deps.ProviderOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("llm router call failed: %w", err)
	}

	choice := strings.Trim(strings.TrimSpace(resp.Content), "\"'`")
	choice = strings.TrimSpace(choice)
	matched := false
	for _, b := range cfg.Branches {
		if strings.EqualFold(b.ID, choice) {
			choice = b.ID
			matched = true
			break
		}
	}

	usage := resp.Usage
	return &domain.StepResult{
		Output:     choice,
		NextBranch: choice,
		TokenUsage: &usage,
		Meta: map[string]any{
			"mode":    RouterModeLLM,
			"model":   model,
			"matched": matched,
		},
	}, nil
}

// routerPrompt перечисляет ветки и требует ответить только ID ветки.
func routerPrompt(custom string, branches []branchConfig) string {
	var sb strings.Builder
	if custom != "" {
		sb.WriteString(custom)
		sb.WriteString("\n\n")
	}
	sb.WriteString("You are a routing assistant. Choose the branch that best matches the user's message.\n\n")
	sb.WriteString("Available branches:\n")
	for _, b := range branches {
		sb.WriteString("- ")
		sb.WriteString(b.ID)
		if b.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(b.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nRespond with ONLY the branch id, nothing else.")
	return sb.String()
}

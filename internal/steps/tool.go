package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/scope"
)

// StepTypeTool — тип шага вызова инструмента.
const StepTypeTool = "tool"

// ToolExecutor — шаг вызова именованного инструмента.
//
// Конфигурация:
//
//	{
//	    "tool": "lookup_order",
//	    "params": {"orderId": "{{ extract.orderId }}", "verbose": true}
//	}
//
// Строковые params вычисляются как шаблоны, затем поверх них
// накладываются inputs шага (inputs побеждают при совпадении ключей).
type ToolExecutor struct{}

// NewToolExecutor создаёт ToolExecutor.
func NewToolExecutor() *ToolExecutor {
	return &ToolExecutor{}
}

// Type возвращает тип шага.
func (e *ToolExecutor) Type() string {
	return StepTypeTool
}

// Execute вызывает инструмент.
func (e *ToolExecutor) Execute(ctx context.Context, req *Request) (*domain.StepResult, error) {
	name := GetConfigString(req.Step.Config, "tool")
	if name == "" {
		name = GetConfigString(req.Step.Config, "toolName")
	}
	if name == "" {
		return nil, fmt.Errorf("%w: tool step requires config.tool or config.toolName", ErrInvalidConfig)
	}

	if err := req.PreStepCheck(scope.Requirements{Tools: []string{name}}); err != nil {
		return violationResult(err), nil
	}

	if req.Deps == nil || req.Deps.Tools == nil {
		return nil, fmt.Errorf("%w: tools", ErrCapabilityMissing)
	}

	ns := req.Namespace()
	ev := req.Evaluator()

	input := make(map[string]any)
	if params, ok := req.Step.Config["params"].(map[string]any); ok {
		for k, v := range params {
			if s, ok := v.(string); ok {
				input[k] = ev.ResolveTemplate(s, ns)
			} else {
				input[k] = v
			}
		}
	}
	for k, v := range req.ResolveInputs() {
		input[k] = v
	}

	result, err := req.Deps.Tools.ExecuteTool(ctx, domain.ToolCall{
		ToolName:  name,
		Input:     input,
		AccountID: req.AccountID(),
	})
	if err != nil {
		return nil, fmt.Errorf("tool %s failed: %w", name, err)
	}

	return &domain.StepResult{
		Output: result.Output,
		Error:  result.Error,
		Meta:   map[string]any{"tool": name},
	}, nil
}

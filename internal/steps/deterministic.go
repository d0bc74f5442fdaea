package steps

import (
	"context"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// StepTypeDeterministic — тип шага проверки правил.
const StepTypeDeterministic = "deterministic"

// ActionPass — действие по умолчанию, если ни одно правило не сработало.
const ActionPass = "pass"

type checkConfig struct {
	Rule   string `mapstructure:"rule"`
	Action string `mapstructure:"action"`
	Value  any    `mapstructure:"value"`
}

type deterministicConfig struct {
	Checks []checkConfig `mapstructure:"checks"`
}

// DeterministicExecutor — шаг проверки упорядоченных правил.
//
// Правила вычисляются в пространстве имён шины, дополненном inputs шага.
// Срабатывает первое истинное правило.
//
// Конфигурация:
//
//	{
//	    "checks": [
//	        {"rule": "{{ trigger.content == '' }}", "action": "reject", "value": "empty message"},
//	        {"rule": "{{ spam-check.score > 0.8 }}", "action": "block"}
//	    ]
//	}
//
// Output: {"action": "reject", "value": "empty message"}
// или {"action": "pass", "value": null}.
type DeterministicExecutor struct{}

// NewDeterministicExecutor создаёт DeterministicExecutor.
func NewDeterministicExecutor() *DeterministicExecutor {
	return &DeterministicExecutor{}
}

// Type возвращает тип шага.
func (e *DeterministicExecutor) Type() string {
	return StepTypeDeterministic
}

// Execute проверяет правила. Ограничения не проверяются.
func (e *DeterministicExecutor) Execute(_ context.Context, req *Request) (*domain.StepResult, error) {
	var cfg deterministicConfig
	if err := DecodeConfig(req.Step.Config, &cfg); err != nil {
		return nil, err
	}

	inputs := req.ResolveInputs()
	ns := req.InputNamespace(inputs)
	ev := req.Evaluator()

	for i, check := range cfg.Checks {
		if !ev.EvaluateCondition(check.Rule, ns) {
			continue
		}

		value := check.Value
		if s, ok := value.(string); ok {
			value = ev.ResolveTemplate(s, ns)
		}
		return &domain.StepResult{
			Output: map[string]any{
				"action": check.Action,
				"value":  value,
			},
			Meta: map[string]any{"matchedCheck": i},
		}, nil
	}

	return &domain.StepResult{
		Output: map[string]any{
			"action": ActionPass,
			"value":  nil,
		},
	}, nil
}

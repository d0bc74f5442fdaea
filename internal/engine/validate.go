package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// StepTypes — набор известных типов шагов (например, реестр исполнителей).
type StepTypes interface {
	Has(stepType string) bool
}

// Validate выполняет статическую проверку AgentFlow.
//
// Ошибки (первая найденная возвращается как *ValidationError):
// - Пустой или повторяющийся ID шага
// - Пустой или неизвестный тип шага (если types не nil)
// - next или entryPoint ссылаются на несуществующий шаг
// - Синтаксическая ошибка в condition, inputs или строках config
//
// Замечания не мешают выполнению: next без entryPoint игнорируется,
// шаги недостижимы из точки входа, в графе есть циклы.
func Validate(flow *domain.AgentFlow, types StepTypes) ([]Warning, error) {
	var warnings []Warning

	if flow == nil || len(flow.Steps) == 0 {
		return []Warning{{Message: "flow has no steps"}}, nil
	}

	// Собираем все ID шагов
	stepIDs := make(map[string]bool, len(flow.Steps))

	for i := range flow.Steps {
		if err := ValidateStep(&flow.Steps[i], stepIDs, types); err != nil {
			return nil, err
		}
	}

	// Проверяем ссылки next
	for i := range flow.Steps {
		step := &flow.Steps[i]
		for _, target := range step.Next.Targets {
			if !stepIDs[target] {
				return nil, NewValidationError(step.ID, "next",
					fmt.Sprintf("next refers to unknown step: %s", target), ErrUnknownNextStep)
			}
			if target == step.ID {
				warnings = append(warnings, Warning{StepID: step.ID, Message: "next points to the step itself"})
			}
		}
		for _, target := range RouterTargets(step) {
			if !stepIDs[target] {
				warnings = append(warnings, Warning{StepID: step.ID,
					Message: fmt.Sprintf("router target %s is not a step of this flow", target)})
			}
		}
	}

	if flow.EntryPoint == "" {
		for i := range flow.Steps {
			if !flow.Steps[i].Next.IsZero() {
				warnings = append(warnings, Warning{StepID: flow.Steps[i].ID,
					Message: "next is ignored because the flow has no entryPoint; steps run in array order"})
			}
		}
		return warnings, nil
	}

	if !stepIDs[flow.EntryPoint] {
		return nil, NewValidationError("", "entryPoint",
			fmt.Sprintf("entry point refers to unknown step: %s", flow.EntryPoint), ErrUnknownEntryPoint)
	}

	graph := BuildGraph(flow)
	reachable := graph.Reachable(flow.EntryPoint)
	for _, node := range graph.Order {
		if !reachable[node.ID] {
			warnings = append(warnings, Warning{StepID: node.ID, Message: "step is unreachable from the entry point"})
		}
	}

	if cyclic := graph.Cyclic(); len(cyclic) > 0 {
		warnings = append(warnings, Warning{
			Message: "flow graph contains cycles through: " + strings.Join(cyclic, ", ") + "; each step runs at most once",
		})
	}

	return warnings, nil
}

// ValidateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func ValidateStep(step *domain.AgentFlowStep, stepIDs map[string]bool, types StepTypes) error {
	// Проверка ID
	if step.ID == "" {
		return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	// Проверка уникальности ID
	if stepIDs[step.ID] {
		return NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}
	stepIDs[step.ID] = true

	// Проверка типа
	if step.Type == "" {
		return NewValidationError(step.ID, "type", "step has empty type", ErrUnknownStepType)
	}
	if types != nil && !types.Has(step.Type) {
		return NewValidationError(step.ID, "type",
			fmt.Sprintf("unknown step type: %s", step.Type), ErrUnknownStepType)
	}

	// Проверка выражений
	if step.Condition != "" {
		if err := checkCondition(step.Condition); err != nil {
			return NewValidationError(step.ID, "condition", err.Error(), ErrInvalidExpression)
		}
	}

	names := make([]string, 0, len(step.Inputs))
	for name := range step.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := CheckTemplate(step.Inputs[name]); err != nil {
			return NewValidationError(step.ID, "inputs."+name, err.Error(), ErrInvalidExpression)
		}
	}

	return checkConfigTemplates(step.ID, "config", step.Config)
}

// CheckTemplate проверяет синтаксис всех {{ expr }} в строке.
func CheckTemplate(tmpl string) error {
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if _, err := Evaluate(strings.TrimSpace(m[1]), nil); err != nil {
			return err
		}
	}
	return nil
}

func checkCondition(cond string) error {
	if IsTemplate(cond) {
		return CheckTemplate(cond)
	}
	_, err := Evaluate(strings.TrimSpace(cond), nil)
	return err
}

// checkConfigTemplates рекурсивно проверяет строковые значения config.
// Правила deterministic-шагов и условия маршрутов — тоже шаблоны.
func checkConfigTemplates(stepID, path string, v any) error {
	switch val := v.(type) {
	case string:
		if err := CheckTemplate(val); err != nil {
			return NewValidationError(stepID, path, err.Error(), ErrInvalidExpression)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := checkConfigTemplates(stepID, path+"."+k, val[k]); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range val {
			if err := checkConfigTemplates(stepID, fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	}
	return nil
}

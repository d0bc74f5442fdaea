package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Jeffail/gabs/v2"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
)

// StepTypeTransform — тип шага преобразования данных.
const StepTypeTransform = "transform"

// Операции transform-шага.
const (
	OperationExtract     = "extract"
	OperationMerge       = "merge"
	OperationFormat      = "format"
	OperationPassthrough = "passthrough"
)

type transformConfig struct {
	Operation string `mapstructure:"operation"`
	Field     string `mapstructure:"field"`
	Source    string `mapstructure:"source"`
	Template  string `mapstructure:"template"`
}

// TransformExecutor — шаг преобразования данных без внешних вызовов.
//
// Операции:
//   - extract: достаёт поле по пути field ("order.items.0.sku") из
//     input source, единственного input или всей карты inputs;
//   - merge: объединяет inputs-объекты в один объект;
//   - format: вычисляет template в пространстве имён шины, дополненном
//     inputs и самой картой "inputs";
//   - passthrough (по умолчанию): значение единственного input или
//     вся карта inputs.
//
// Пример:
//
//	{
//	    "type": "transform",
//	    "config": {"operation": "extract", "field": "customer.email"},
//	    "inputs": {"data": "{{ lookup }}"}
//	}
type TransformExecutor struct{}

// NewTransformExecutor создаёт TransformExecutor.
func NewTransformExecutor() *TransformExecutor {
	return &TransformExecutor{}
}

// Type возвращает тип шага.
func (e *TransformExecutor) Type() string {
	return StepTypeTransform
}

// Execute выполняет операцию.
func (e *TransformExecutor) Execute(_ context.Context, req *Request) (*domain.StepResult, error) {
	var cfg transformConfig
	if err := DecodeConfig(req.Step.Config, &cfg); err != nil {
		return nil, err
	}

	inputs := req.ResolveInputs()
	op := cfg.Operation
	if op == "" {
		op = OperationPassthrough
	}

	switch op {
	case OperationExtract:
		return e.extract(&cfg, inputs)
	case OperationMerge:
		return &domain.StepResult{
			Output: mergeInputs(inputs),
			Meta:   map[string]any{"operation": op},
		}, nil
	case OperationFormat:
		ns := engine.Overlay{
			Base: req.Namespace(),
			Top:  withInputs(inputs),
		}
		return &domain.StepResult{
			Output: req.Evaluator().ResolveTemplate(cfg.Template, ns),
			Meta:   map[string]any{"operation": op},
		}, nil
	case OperationPassthrough:
		return &domain.StepResult{
			Output: passthrough(inputs),
			Meta:   map[string]any{"operation": op},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown transform operation %q", ErrInvalidConfig, op)
	}
}

func (e *TransformExecutor) extract(cfg *transformConfig, inputs engine.Vars) (*domain.StepResult, error) {
	if cfg.Field == "" {
		return nil, fmt.Errorf("%w: extract requires config.field", ErrInvalidConfig)
	}

	var source any
	switch {
	case cfg.Source != "":
		source = inputs[cfg.Source]
	case len(inputs) == 1:
		source = passthrough(inputs)
	default:
		source = map[string]any(inputs)
	}

	if s, ok := source.(string); ok {
		if parsed, ok := ParseJSONLoose(s); ok {
			source = parsed
		}
	}

	doc, err := jsonDocument(source)
	if err != nil {
		return nil, fmt.Errorf("extract %q: %w", cfg.Field, err)
	}

	return &domain.StepResult{
		Output: doc.Path(cfg.Field).Data(),
		Meta: map[string]any{
			"operation": OperationExtract,
			"field":     cfg.Field,
			"found":     doc.ExistsP(cfg.Field),
		},
	}, nil
}

// jsonDocument приводит значение к виду map[string]any / []any,
// по которому умеет ходить gabs.
func jsonDocument(v any) (*gabs.Container, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return gabs.ParseJSON(raw)
}

// mergeInputs объединяет inputs в порядке ключей. Объекты раскрываются,
// прочие значения кладутся под своим ключом.
func mergeInputs(inputs engine.Vars) map[string]any {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make(map[string]any)
	for _, k := range keys {
		if obj, ok := inputs[k].(map[string]any); ok {
			for field, v := range obj {
				merged[field] = v
			}
			continue
		}
		merged[k] = inputs[k]
	}
	return merged
}

func passthrough(inputs engine.Vars) any {
	if len(inputs) == 1 {
		for _, v := range inputs {
			return v
		}
	}
	return map[string]any(inputs)
}

func withInputs(inputs engine.Vars) engine.Vars {
	top := make(engine.Vars, len(inputs)+1)
	for k, v := range inputs {
		top[k] = v
	}
	top["inputs"] = map[string]any(inputs)
	return top
}

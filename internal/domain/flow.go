package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// AgentFlow — определение flow агента.
//
// Flow описывает направленный граф шагов. Граф задаётся полем Next каждого шага,
// а точкой входа служит EntryPoint. Если EntryPoint пуст, шаги выполняются
// в порядке массива, а Next игнорируется.
//
// Движок flow не модифицирует AgentFlow: определение только читается.
type AgentFlow struct {
	// Steps — шаги flow в порядке объявления.
	Steps []AgentFlowStep `json:"steps" yaml:"steps"`

	// EntryPoint — ID первого шага. Пустая строка означает "выполнять по порядку".
	EntryPoint string `json:"entryPoint,omitempty" yaml:"entryPoint,omitempty"`
}

// StepByID возвращает шаг с указанным ID.
func (f *AgentFlow) StepByID(id string) (*AgentFlowStep, bool) {
	for i := range f.Steps {
		if f.Steps[i].ID == id {
			return &f.Steps[i], true
		}
	}
	return nil, false
}

// IndexOf возвращает позицию шага в массиве или -1.
func (f *AgentFlow) IndexOf(id string) int {
	for i := range f.Steps {
		if f.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// AgentFlowStep — определение шага flow.
type AgentFlowStep struct {
	// ID — уникальный идентификатор шага в рамках flow.
	// Может содержать дефисы: "classify-intent".
	ID string `json:"id" yaml:"id"`

	// Type — тип исполнителя: llm, rag, deterministic, tool, router, transform.
	Type string `json:"type" yaml:"type"`

	// Config — конфигурация, специфичная для типа шага.
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// Inputs — именованные шаблоны, вычисляемые перед выполнением шага.
	// Например: {"question": "{{trigger.content}}"}
	Inputs map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Condition — выражение-guard. Если false, шаг пропускается.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Next — следующий шаг (строка) или набор веток (массив).
	Next NextSteps `json:"next,omitzero" yaml:"next,omitempty"`
}

// NextSteps — значение поля next.
//
// В JSON/YAML записывается либо строкой ("summarize"), либо массивом
// (["billing", "support"]). Форма сохраняется: движок продолжает цепочку
// только по одиночному next, а массив означает fan-out на один уровень.
type NextSteps struct {
	Targets []string
	Fanout  bool
}

// Next создаёт линейный переход на один шаг.
func Next(id string) NextSteps {
	return NextSteps{Targets: []string{id}}
}

// Branches создаёт fan-out на несколько шагов.
func Branches(ids ...string) NextSteps {
	return NextSteps{Targets: ids, Fanout: true}
}

// IsZero возвращает true, если next не задан.
func (n NextSteps) IsZero() bool {
	return len(n.Targets) == 0
}

// Single возвращает ID следующего шага для линейного перехода.
func (n NextSteps) Single() (string, bool) {
	if n.Fanout || len(n.Targets) != 1 {
		return "", false
	}
	return n.Targets[0], true
}

// MarshalJSON реализует json.Marshaler.
func (n NextSteps) MarshalJSON() ([]byte, error) {
	if id, ok := n.Single(); ok {
		return json.Marshal(id)
	}
	if n.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(n.Targets)
}

// UnmarshalJSON реализует json.Unmarshaler.
func (n *NextSteps) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = NextSteps{}
		return nil
	}

	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*n = NextSteps{}
		if id != "" {
			*n = Next(id)
		}
		return nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("next must be a string or an array of strings: %w", err)
	}
	*n = Branches(ids...)
	return nil
}

// MarshalYAML реализует yaml.Marshaler.
func (n NextSteps) MarshalYAML() (any, error) {
	if id, ok := n.Single(); ok {
		return id, nil
	}
	if n.IsZero() {
		return nil, nil
	}
	return n.Targets, nil
}

// UnmarshalYAML реализует yaml.Unmarshaler.
func (n *NextSteps) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*n = NextSteps{}
			return nil
		}
		*n = Next(node.Value)
		return nil
	case yaml.SequenceNode:
		var ids []string
		if err := node.Decode(&ids); err != nil {
			return err
		}
		*n = Branches(ids...)
		return nil
	default:
		return fmt.Errorf("line %d: next must be a string or a list of strings", node.Line)
	}
}

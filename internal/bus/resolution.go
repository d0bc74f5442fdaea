package bus

// Корневые имена пространства выражений.
const (
	NameTrigger = "trigger"
	NameContext = "context"
)

// Resolution — пространство имён выражений, построенное из шины.
//
// Известные пространства: trigger, context (глобальные метаданные) и
// outputs шагов по их ID. Output шага перекрывает trigger/context,
// если шаг назван так же.
type Resolution struct {
	Trigger map[string]any
	Meta    map[string]any
	Outputs map[string]any
}

// Lookup реализует engine.Namespace.
func (r *Resolution) Lookup(name string) (any, bool) {
	if v, ok := r.Outputs[name]; ok {
		return v, true
	}
	switch name {
	case NameTrigger:
		return r.Trigger, true
	case NameContext:
		return r.Meta, true
	}
	return nil, false
}

// ToMap возвращает пространство имён как единый map:
// { trigger, context, <stepId>: output, ... }.
func (r *Resolution) ToMap() map[string]any {
	m := make(map[string]any, len(r.Outputs)+2)
	m[NameTrigger] = r.Trigger
	m[NameContext] = r.Meta
	for id, out := range r.Outputs {
		m[id] = out
	}
	return m
}

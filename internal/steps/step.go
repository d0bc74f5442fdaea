package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/shaiso/AgentFlow/internal/bus"
	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
	"github.com/shaiso/AgentFlow/internal/scope"
)

// Ошибки шагов.
var (
	// ErrExecutorNotFound — для типа шага нет исполнителя.
	ErrExecutorNotFound = errors.New("no executor registered for step type")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrRegistryFrozen — регистрация после запуска запрещена.
	ErrRegistryFrozen = errors.New("executor registry is frozen")

	// ErrCapabilityMissing — исполнителю не передана нужная возможность.
	ErrCapabilityMissing = errors.New("capability not configured")
)

// DefaultModel — модель, используемая, если в config шага модель не указана.
const DefaultModel = "openai/gpt-4o-mini"

// Executor — исполнитель шагов одного типа.
//
// Каждый тип шага (llm, rag, deterministic, tool, router, transform)
// реализует этот интерфейс. Ошибка, возвращённая из Execute, и паника
// превращаются движком в StepResult.Error и не роняют выполнение flow.
type Executor interface {
	// Type возвращает тип шага.
	Type() string

	// Execute выполняет шаг.
	// Шаг должен проверять ctx.Done() при долгих операциях.
	Execute(ctx context.Context, req *Request) (*domain.StepResult, error)
}

// LLMCaller — возможность "вызвать языковую модель".
type LLMCaller interface {
	CallLLM(ctx context.Context, req domain.LLMRequest) (*domain.LLMResponse, error)
}

// KnowledgeSearcher — возможность "искать в базе знаний".
type KnowledgeSearcher interface {
	SearchKnowledge(ctx context.Context, q domain.KnowledgeQuery) (*domain.KnowledgeResult, error)
}

// ToolRunner — возможность "выполнить именованный инструмент".
type ToolRunner interface {
	ExecuteTool(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error)
}

// LLMFunc адаптирует функцию к LLMCaller.
type LLMFunc func(ctx context.Context, req domain.LLMRequest) (*domain.LLMResponse, error)

// CallLLM реализует LLMCaller.
func (f LLMFunc) CallLLM(ctx context.Context, req domain.LLMRequest) (*domain.LLMResponse, error) {
	return f(ctx, req)
}

// KnowledgeFunc адаптирует функцию к KnowledgeSearcher.
type KnowledgeFunc func(ctx context.Context, q domain.KnowledgeQuery) (*domain.KnowledgeResult, error)

// SearchKnowledge реализует KnowledgeSearcher.
func (f KnowledgeFunc) SearchKnowledge(ctx context.Context, q domain.KnowledgeQuery) (*domain.KnowledgeResult, error) {
	return f(ctx, q)
}

// ToolFunc адаптирует функцию к ToolRunner.
type ToolFunc func(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error)

// ExecuteTool реализует ToolRunner.
func (f ToolFunc) ExecuteTool(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	return f(ctx, call)
}

// Dependencies — внешние возможности и параметры выполнения.
type Dependencies struct {
	LLM       LLMCaller
	Knowledge KnowledgeSearcher
	Tools     ToolRunner

	// AccountID — аккаунт, от имени которого идут вызовы.
	AccountID string

	// ProviderOrder — предпочтительный порядок LLM-провайдеров.
	ProviderOrder []string

	// Evaluator — вычислитель выражений. Nil — стандартный.
	Evaluator *engine.Evaluator

	// Logger — логгер. Nil — slog.Default().
	Logger *slog.Logger
}

// Request — входные данные для выполнения шага.
type Request struct {
	Step     *domain.AgentFlowStep
	Bus      *bus.Bus
	Enforcer *scope.Enforcer
	Deps     *Dependencies
}

// Evaluator возвращает вычислитель выражений запроса.
func (r *Request) Evaluator() *engine.Evaluator {
	if r.Deps == nil {
		return nil
	}
	return r.Deps.Evaluator
}

// Logger возвращает логгер с step_id.
func (r *Request) Logger() *slog.Logger {
	logger := slog.Default()
	if r.Deps != nil && r.Deps.Logger != nil {
		logger = r.Deps.Logger
	}
	return logger.With("step_id", r.Step.ID, "step_type", r.Step.Type)
}

// Namespace возвращает пространство имён выражений из шины контекста.
func (r *Request) Namespace() engine.Namespace {
	if r.Bus == nil {
		return engine.Vars{}
	}
	return r.Bus.ResolutionContext()
}

// ResolveInputs вычисляет шаблоны inputs шага с сохранением типов.
func (r *Request) ResolveInputs() engine.Vars {
	ns := r.Namespace()
	ev := r.Evaluator()
	resolved := make(engine.Vars, len(r.Step.Inputs))
	for name, tmpl := range r.Step.Inputs {
		resolved[name] = ev.ResolveTemplate(tmpl, ns)
	}
	return resolved
}

// InputNamespace возвращает пространство имён, в котором вычисленные
// inputs перекрывают trigger, context и outputs шагов.
func (r *Request) InputNamespace(inputs engine.Vars) engine.Namespace {
	return engine.Overlay{Base: r.Namespace(), Top: inputs}
}

// TriggerContent возвращает текст триггера.
func (r *Request) TriggerContent() string {
	if r.Bus == nil {
		return ""
	}
	return r.Bus.Trigger().Content
}

// AccountID возвращает ID аккаунта из зависимостей.
func (r *Request) AccountID() string {
	if r.Deps == nil {
		return ""
	}
	return r.Deps.AccountID
}

// PreStepCheck выполняет проверку ограничений перед шагом.
// Без Enforcer проверка пропускается.
func (r *Request) PreStepCheck(req scope.Requirements) error {
	if r.Enforcer == nil {
		return nil
	}
	return r.Enforcer.PreStepCheck(req)
}

// violationResult превращает нарушение ограничений в ошибку шага.
func violationResult(err error) *domain.StepResult {
	result := &domain.StepResult{Error: err.Error()}
	if v, ok := scope.AsViolation(err); ok {
		result.Meta = map[string]any{"violation": string(v.Kind)}
	}
	return result
}

// DecodeConfig декодирует config шага в типизированную структуру
// по тегам mapstructure. Строки приводятся к числам и bool.
func DecodeConfig(config map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// inputLines склеивает inputs в строки "key: value" в порядке ключей.
func inputLines(inputs engine.Vars) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+engine.Stringify(inputs[k]))
	}
	return strings.Join(lines, "\n")
}

// userMessage строит сообщение пользователя для модели:
// inputs в виде "key: value" или текст триггера, если inputs нет.
func userMessage(req *Request, inputs engine.Vars) string {
	if len(inputs) == 0 {
		return req.TriggerContent()
	}
	return inputLines(inputs)
}

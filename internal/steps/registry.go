package steps

import (
	"fmt"
	"sort"
	"sync"
)

// Registry сопоставляет тип шага с его Executor.
// Наполняется при старте и замораживается Freeze перед первым выполнением.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	frozen    bool
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными исполнителями.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, exec := range []Executor{
		NewLLMExecutor(),
		NewRAGExecutor(),
		NewDeterministicExecutor(),
		NewToolExecutor(),
		NewRouterExecutor(),
		NewTransformExecutor(),
	} {
		_ = r.Register(exec)
	}

	return r
}

// Register регистрирует исполнитель.
// Если исполнитель с таким типом уже существует, он будет перезаписан.
// Возвращает ErrRegistryFrozen после Freeze.
func (r *Registry) Register(exec Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %s", ErrRegistryFrozen, exec.Type())
	}
	r.executors[exec.Type()] = exec
	return nil
}

// Get возвращает исполнитель по типу шага.
// Возвращает ErrExecutorNotFound, если исполнитель не найден.
func (r *Registry) Get(stepType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, exists := r.executors[stepType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotFound, stepType)
	}

	return exec, nil
}

// Has проверяет, зарегистрирован ли исполнитель.
func (r *Registry) Has(stepType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[stepType]
	return exists
}

// Types возвращает список всех зарегистрированных типов шагов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных исполнителей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

// Freeze запрещает дальнейшие изменения реестра.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global возвращает общий реестр процесса со стандартными исполнителями.
func Global() *Registry {
	globalOnce.Do(func() {
		global = DefaultRegistry()
	})
	return global
}

// RegisterExecutor добавляет исполнитель в Global().
func RegisterExecutor(exec Executor) error {
	return Global().Register(exec)
}

// GetExecutor ищет исполнитель в Global().
func GetExecutor(stepType string) (Executor, error) {
	return Global().Get(stepType)
}

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// Ошибки каталога.
var (
	// ErrToolNotFound — инструмент с таким именем не зарегистрирован.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidTool — невалидное описание инструмента.
	ErrInvalidTool = errors.New("invalid tool definition")
)

// Func — реализация инструмента.
// Ошибка Func считается ошибкой инструмента и попадает в ToolResult.Error.
type Func func(ctx context.Context, input map[string]any) (any, error)

// Catalog — каталог именованных инструментов.
//
// Реализует steps.ToolRunner. Потокобезопасен.
type Catalog struct {
	mu     sync.RWMutex
	tools  map[string]Func
	logger *slog.Logger
}

// NewCatalog создаёт пустой каталог.
func NewCatalog(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		tools:  make(map[string]Func),
		logger: logger,
	}
}

// Register регистрирует инструмент. Существующий инструмент с тем же
// именем заменяется.
func (c *Catalog) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: name and func are required", ErrInvalidTool)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[name] = fn
	return nil
}

// Has проверяет, зарегистрирован ли инструмент.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tools[name]
	return ok
}

// Names возвращает отсортированный список имён инструментов.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteTool выполняет инструмент.
//
// Неизвестный инструмент — ошибка вызова. Ошибка самого инструмента
// возвращается в ToolResult.Error.
func (c *Catalog) ExecuteTool(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	c.mu.RLock()
	fn, ok := c.tools[call.ToolName]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, call.ToolName)
	}

	input := call.Input
	if input == nil {
		input = map[string]any{}
	}

	output, err := fn(ctx, input)
	if err != nil {
		c.logger.Warn("tool returned error",
			"tool", call.ToolName,
			"account_id", call.AccountID,
			"error", err,
		)
		return &domain.ToolResult{Error: err.Error()}, nil
	}

	return &domain.ToolResult{Output: output}, nil
}

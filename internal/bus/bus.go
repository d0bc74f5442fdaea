// Package bus реализует шину контекста выполнения flow.
//
// Шина — журнал результатов шагов, в который можно только дописывать:
// каждый шаг пишет свою запись ровно один раз. Из журнала строится
// пространство имён для выражений: trigger, context и <stepId>.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// ErrDuplicateEntry — повторная запись для того же шага.
var ErrDuplicateEntry = errors.New("context bus already has an entry")

// Bus — шина контекста одного выполнения.
//
// Trigger и метаданные копируются при создании и дальше не меняются.
// Bus безопасен для конкурентного чтения.
type Bus struct {
	mu      sync.RWMutex
	trigger domain.TriggerData
	meta    map[string]any
	entries map[string]domain.ContextEntry
	order   []string
}

// New создаёт шину с замороженными триггером и метаданными.
func New(trigger domain.TriggerData, meta map[string]any) *Bus {
	frozenMeta := map[string]any{}
	if meta != nil {
		frozenMeta = domain.CloneValue(meta).(map[string]any)
	}
	return &Bus{
		trigger: trigger.Clone(),
		meta:    frozenMeta,
		entries: make(map[string]domain.ContextEntry),
	}
}

// Write добавляет запись шага.
// Возвращает ErrDuplicateEntry, если для шага уже есть запись.
func (b *Bus) Write(entry domain.ContextEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[entry.StepID]; exists {
		return fmt.Errorf("%w for step %q", ErrDuplicateEntry, entry.StepID)
	}
	b.entries[entry.StepID] = entry
	b.order = append(b.order, entry.StepID)
	return nil
}

// Read возвращает запись шага.
func (b *Bus) Read(stepID string) (domain.ContextEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[stepID]
	return entry, ok
}

// Output возвращает output шага или nil.
func (b *Bus) Output(stepID string) any {
	entry, ok := b.Read(stepID)
	if !ok {
		return nil
	}
	return entry.Output
}

// Has проверяет, есть ли запись для шага.
func (b *Bus) Has(stepID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[stepID]
	return ok
}

// CompletedSteps возвращает ID шагов в порядке записи.
func (b *Bus) CompletedSteps() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Trigger возвращает копию триггера.
func (b *Bus) Trigger() domain.TriggerData {
	return b.trigger.Clone()
}

// TotalTokenUsage суммирует расход токенов по всем записям.
func (b *Bus) TotalTokenUsage() domain.TokenUsage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total domain.TokenUsage
	for _, id := range b.order {
		if usage := b.entries[id].TokenUsage; usage != nil {
			total.Add(*usage)
		}
	}
	return total
}

// TotalElapsedMs суммирует длительности шагов.
func (b *Bus) TotalElapsedMs() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total int64
	for _, id := range b.order {
		total += b.entries[id].ElapsedMs()
	}
	return total
}

// ResolutionContext возвращает пространство имён для выражений:
// trigger, context (глобальные метаданные) и output каждого шага.
func (b *Bus) ResolutionContext() *Resolution {
	b.mu.RLock()
	defer b.mu.RUnlock()

	outputs := make(map[string]any, len(b.entries))
	for id, entry := range b.entries {
		outputs[id] = entry.Output
	}
	return &Resolution{
		Trigger: b.trigger.ToMap(),
		Meta:    b.meta,
		Outputs: outputs,
	}
}

// Snapshot возвращает полное состояние шины для трассировки.
func (b *Bus) Snapshot() *domain.ContextSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make([]domain.ContextEntry, 0, len(b.order))
	for _, id := range b.order {
		entries = append(entries, b.entries[id])
	}
	return &domain.ContextSnapshot{
		Trigger: b.trigger.Clone(),
		Meta:    domain.CloneValue(b.meta).(map[string]any),
		Entries: entries,
	}
}

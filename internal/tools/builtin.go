package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Встроенные инструменты.
const (
	ToolEcho        = "echo"
	ToolCurrentTime = "current_time"
	ToolGenerateID  = "generate_id"
	ToolTextStats   = "text_stats"
)

// RegisterBuiltins регистрирует встроенные инструменты.
// now — источник времени для current_time (nil — time.Now).
func RegisterBuiltins(c *Catalog, now func() time.Time) {
	if now == nil {
		now = time.Now
	}

	_ = c.Register(ToolEcho, echo)
	_ = c.Register(ToolCurrentTime, currentTime(now))
	_ = c.Register(ToolGenerateID, generateID)
	_ = c.Register(ToolTextStats, textStats)
}

// echo возвращает вход без изменений.
func echo(_ context.Context, input map[string]any) (any, error) {
	return input, nil
}

// currentTime возвращает текущее время в часовом поясе input.timezone.
func currentTime(now func() time.Time) Func {
	return func(_ context.Context, input map[string]any) (any, error) {
		loc := time.UTC
		if tz, _ := input["timezone"].(string); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return nil, fmt.Errorf("unknown timezone %q", tz)
			}
			loc = l
		}

		t := now().In(loc)
		return map[string]any{
			"iso":      t.Format(time.RFC3339),
			"date":     t.Format(time.DateOnly),
			"weekday":  t.Weekday().String(),
			"timezone": loc.String(),
		}, nil
	}
}

func generateID(_ context.Context, input map[string]any) (any, error) {
	id := uuid.NewString()
	if prefix, _ := input["prefix"].(string); prefix != "" {
		return prefix + id, nil
	}
	return id, nil
}

// textStats считает символы, слова и строки в input.text.
func textStats(_ context.Context, input map[string]any) (any, error) {
	text, ok := input["text"].(string)
	if !ok {
		return nil, fmt.Errorf("text_stats requires string input \"text\"")
	}

	lines := 0
	if text != "" {
		lines = strings.Count(text, "\n") + 1
	}

	return map[string]any{
		"characters": len([]rune(text)),
		"words":      len(strings.FieldsFunc(text, unicode.IsSpace)),
		"lines":      lines,
	}, nil
}

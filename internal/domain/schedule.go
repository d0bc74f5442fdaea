package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule описывает периодический запуск одного ExecuteRequest.
// Задаётся либо cron-выражением (в часовом поясе Timezone), либо
// интервалом IntervalSec; при обоих полях побеждает cron.
// Поля после Request ведёт scheduler и в YAML не попадают.
type Schedule struct {
	Name        string `json:"name" yaml:"name"`
	CronExpr    string `json:"cron_expr,omitempty" yaml:"cron,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty" yaml:"intervalSec,omitempty"`
	Timezone    string `json:"timezone,omitempty" yaml:"timezone,omitempty"` // пусто = UTC
	Enabled     bool   `json:"enabled" yaml:"enabled"`

	// Request отправляется при каждом срабатывании с Trigger.Type = scheduled.
	Request ExecuteRequest `json:"request" yaml:"request"`

	NextDueAt       *time.Time `json:"next_due_at,omitempty" yaml:"-"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty" yaml:"-"`
	LastExecutionID *uuid.UUID `json:"last_execution_id,omitempty" yaml:"-"`
}

func (s *Schedule) IsCron() bool { return s.CronExpr != "" }

func (s *Schedule) IsInterval() bool { return !s.IsCron() && s.IntervalSec > 0 }

// IsDue: включено, время следующего запуска известно и наступило.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Enabled && s.NextDueAt != nil && !now.Before(*s.NextDueAt)
}

// RecordRun фиксирует успешное срабатывание и сдвигает NextDueAt.
func (s *Schedule) RecordRun(executionID uuid.UUID, ranAt, nextDue time.Time) {
	s.LastRunAt, s.LastExecutionID, s.NextDueAt = &ranAt, &executionID, &nextDue
}

package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// ErrNoTiming — у расписания нет ни cron, ни интервала.
var ErrNoTiming = errors.New("schedule has neither cron nor intervalSec")

// cronParser понимает пятипольные выражения и дескрипторы (@hourly, @every 5m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextDue вычисляет время следующего срабатывания после from (в UTC).
//
// Cron-выражение вычисляется в часовом поясе расписания, интервал просто
// прибавляется к from.
func NextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	if sched.IsCron() {
		loc, err := location(sched.Timezone)
		if err != nil {
			return time.Time{}, err
		}
		spec, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
		}
		return spec.Next(from.In(loc)).UTC(), nil
	}

	if sched.IsInterval() {
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}

	return time.Time{}, ErrNoTiming
}

// Validate проверяет расписание целиком, включая flow запроса.
func Validate(sched *domain.Schedule) error {
	if sched.Name == "" {
		return errors.New("schedule has empty name")
	}
	if sched.IntervalSec < 0 {
		return fmt.Errorf("schedule %s: intervalSec must not be negative", sched.Name)
	}
	if _, err := NextDue(sched, time.Now()); err != nil {
		return fmt.Errorf("schedule %s: %w", sched.Name, err)
	}
	if len(sched.Request.Flow.Steps) == 0 {
		return fmt.Errorf("schedule %s: request flow has no steps", sched.Name)
	}
	return nil
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/scheduler"
)

// NewScheduleCmd создаёт группу команд для просмотра файла расписаний.
// Путь берётся из --file или SCHEDULES_FILE.
func NewScheduleCmd(outputFn func() *Output, now func() time.Time) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect schedules file",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "Schedules file (default $SCHEDULES_FILE)")

	load := func() ([]domain.Schedule, error) {
		path := file
		if path == "" {
			path = os.Getenv("SCHEDULES_FILE")
		}
		if path == "" {
			return nil, errors.New("schedules file is not set: use --file or SCHEDULES_FILE")
		}
		return scheduler.LoadFile(path)
	}

	cmd.AddCommand(
		newScheduleListCmd(load, outputFn, now),
		newScheduleNextCmd(load, outputFn, now),
	)

	return cmd
}

func newScheduleListCmd(load func() ([]domain.Schedule, error), outputFn func() *Output, now func() time.Time) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules with their next fire time",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := load()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "CRON", "INTERVAL", "TIMEZONE", "ENABLED", "NEXT_DUE"}
			rows := make([][]string, len(schedules))
			for i := range schedules {
				s := &schedules[i]
				next := "-"
				if s.Enabled {
					t, err := scheduler.NextDue(s, now())
					if err != nil {
						return err
					}
					s.NextDueAt = &t
					next = formatTime(&t)
				}
				rows[i] = []string{
					s.Name, s.CronExpr, formatInterval(s.IntervalSec), s.Timezone,
					strconv.FormatBool(s.Enabled), next,
				}
			}

			outputFn().Print(headers, rows, schedules)
			return nil
		},
	}
}

func newScheduleNextCmd(load func() ([]domain.Schedule, error), outputFn func() *Output, now func() time.Time) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next NAME",
		Short: "Show upcoming fire times of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("count must be positive, got %d", count)
			}

			schedules, err := load()
			if err != nil {
				return err
			}

			var sched *domain.Schedule
			for i := range schedules {
				if schedules[i].Name == args[0] {
					sched = &schedules[i]
					break
				}
			}
			if sched == nil {
				return fmt.Errorf("schedule %q not found", args[0])
			}

			times := make([]time.Time, 0, count)
			rows := make([][]string, 0, count)
			from := now()
			for i := 0; i < count; i++ {
				next, err := scheduler.NextDue(sched, from)
				if err != nil {
					return err
				}
				times = append(times, next)
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					next.Format(time.RFC3339),
					scheduler.IdempotencyKey(sched.Name, next),
				})
				from = next
			}

			outputFn().Print([]string{"#", "DUE_AT", "IDEMPOTENCY_KEY"}, rows, times)
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 5, "Number of fire times to show")
	return cmd
}

func formatInterval(sec int) string {
	if sec <= 0 {
		return ""
	}
	return (time.Duration(sec) * time.Second).String()
}

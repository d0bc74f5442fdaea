package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/repo"
)

type memStore struct {
	mu        sync.Mutex
	byKey     map[string]*domain.Execution
	createErr error
}

func newMemStore() *memStore {
	return &memStore{byKey: make(map[string]*domain.Execution)}
}

func (s *memStore) Create(_ context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.byKey[e.IdempotencyKey]; ok {
		return repo.ErrAlreadyExists
	}
	cp := *e
	s.byKey[e.IdempotencyKey] = &cp
	return nil
}

func (s *memStore) GetByIdempotencyKey(_ context.Context, key string) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byKey[key]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return e, nil
}

type recordingPublisher struct {
	ids []uuid.UUID
}

func (p *recordingPublisher) PublishExecutionPending(_ context.Context, id uuid.UUID) error {
	p.ids = append(p.ids, id)
	return nil
}

type runnerFunc func(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error)

func (f runnerFunc) Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error) {
	return f(ctx, req)
}

type fixedLeader bool

func (l fixedLeader) TryAcquire(context.Context) (bool, error) { return bool(l), nil }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFlow() domain.AgentFlow {
	return domain.AgentFlow{Steps: []domain.AgentFlowStep{
		{ID: "noop", Type: "transform"},
	}}
}

func intervalSchedule(name string, sec int) domain.Schedule {
	return domain.Schedule{
		Name:        name,
		IntervalSec: sec,
		Enabled:     true,
		Request:     domain.ExecuteRequest{AgentID: "bot", Flow: testFlow()},
	}
}

// --- NextDue Tests ---

func TestNextDue(t *testing.T) {
	from := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		sched domain.Schedule
		want  time.Time
	}{
		{
			name:  "interval",
			sched: domain.Schedule{IntervalSec: 90},
			want:  from.Add(90 * time.Second),
		},
		{
			name:  "cron utc",
			sched: domain.Schedule{CronExpr: "0 9 * * *"},
			want:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "cron with timezone",
			sched: domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Europe/Moscow"},
			// 08:30 UTC = 11:30 MSK, следующее 09:00 MSK завтра = 06:00 UTC
			want: time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC),
		},
		{
			name:  "descriptor",
			sched: domain.Schedule{CronExpr: "@hourly"},
			want:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "cron wins over interval",
			sched: domain.Schedule{CronExpr: "*/15 * * * *", IntervalSec: 5},
			want:  time.Date(2026, 3, 10, 8, 45, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDue(&tt.sched, from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNextDue_Errors(t *testing.T) {
	tests := []struct {
		name  string
		sched domain.Schedule
	}{
		{"no timing", domain.Schedule{}},
		{"bad cron", domain.Schedule{CronExpr: "every tuesday"}},
		{"bad timezone", domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Mars/Olympus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NextDue(&tt.sched, time.Now()); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := NextDue(&domain.Schedule{}, time.Now()); !errors.Is(err, ErrNoTiming) {
		t.Errorf("expected ErrNoTiming, got %v", err)
	}
}

// --- File Tests ---

func TestParse(t *testing.T) {
	data := []byte(`
schedules:
  - name: digest
    cron: "0 9 * * 1-5"
    timezone: UTC
    enabled: true
    request:
      agentId: digest-bot
      trigger:
        content: daily digest
      flow:
        steps:
          - id: summarize
            type: transform
  - name: ping
    intervalSec: 60
    enabled: false
    request:
      flow:
        steps:
          - id: ping
            type: transform
`)

	schedules, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(schedules))
	}
	if schedules[0].CronExpr != "0 9 * * 1-5" {
		t.Errorf("expected cron %q, got %q", "0 9 * * 1-5", schedules[0].CronExpr)
	}
	if schedules[0].Request.Trigger.Content != "daily digest" {
		t.Errorf("expected trigger content, got %q", schedules[0].Request.Trigger.Content)
	}
	if schedules[1].IntervalSec != 60 || schedules[1].Enabled {
		t.Errorf("unexpected second schedule: %+v", schedules[1])
	}
}

func TestParse_Errors(t *testing.T) {
	flow := "\n    request:\n      flow:\n        steps:\n          - {id: a, type: transform}"

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"unknown field", "schedules:\n  - name: a\n    every: 5" + flow, "field every not found"},
		{"no timing", "schedules:\n  - name: a" + flow, "neither cron"},
		{"empty name", "schedules:\n  - intervalSec: 5" + flow, "empty name"},
		{"no steps", "schedules:\n  - name: a\n    intervalSec: 5", "no steps"},
		{"duplicate", "schedules:\n  - name: a\n    intervalSec: 5" + flow + "\n  - name: a\n    intervalSec: 5" + flow, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	data := "schedules:\n  - name: a\n    intervalSec: 5\n    request:\n      flow:\n        steps:\n          - {id: a, type: transform}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	schedules, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schedules) != 1 {
		t.Errorf("expected 1 schedule, got %d", len(schedules))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// --- Scheduler Tests ---

func TestNew_RequiresBackend(t *testing.T) {
	if _, err := New(Config{Logger: discardLogger()}); err == nil {
		t.Error("expected error without store and runner")
	}
}

func TestNew_InitialDue(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	disabled := intervalSchedule("off", 10)
	disabled.Enabled = false

	s, err := New(Config{
		Schedules: []domain.Schedule{intervalSchedule("on", 10), disabled},
		Store:     newMemStore(),
		Clock:     c.Now,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := s.Schedules()
	if got[0].NextDueAt == nil || !got[0].NextDueAt.Equal(c.t.Add(10*time.Second)) {
		t.Errorf("expected first due at +10s, got %v", got[0].NextDueAt)
	}
	if got[1].NextDueAt != nil {
		t.Errorf("disabled schedule should have no due time, got %v", got[1].NextDueAt)
	}
}

func TestTick_QueuesExecution(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemStore()
	pub := &recordingPublisher{}

	s, err := New(Config{
		Schedules: []domain.Schedule{intervalSchedule("ping", 10)},
		Store:     store,
		Publisher: pub,
		Clock:     c.Now,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if n := s.Tick(context.Background()); n != 0 {
		t.Fatalf("expected no fires before due, got %d", n)
	}

	c.t = c.t.Add(10 * time.Second)
	if n := s.Tick(context.Background()); n != 1 {
		t.Fatalf("expected 1 fire, got %d", n)
	}

	key := IdempotencyKey("ping", c.t)
	exec, err := store.GetByIdempotencyKey(context.Background(), key)
	if err != nil {
		t.Fatalf("execution with key %s not created: %v", key, err)
	}
	if exec.Request.Trigger.Type != domain.TriggerScheduled {
		t.Errorf("expected trigger %q, got %q", domain.TriggerScheduled, exec.Request.Trigger.Type)
	}
	if exec.Request.Trigger.Metadata["schedule"] != "ping" {
		t.Errorf("expected schedule metadata, got %v", exec.Request.Trigger.Metadata)
	}
	if exec.FlowName != "ping" {
		t.Errorf("expected flow name %q, got %q", "ping", exec.FlowName)
	}
	if len(pub.ids) != 1 || pub.ids[0] != exec.ID {
		t.Errorf("expected publish of %s, got %v", exec.ID, pub.ids)
	}

	sched := s.Schedules()[0]
	if sched.LastExecutionID == nil || *sched.LastExecutionID != exec.ID {
		t.Errorf("expected last execution %s, got %v", exec.ID, sched.LastExecutionID)
	}
	if !sched.NextDueAt.Equal(c.t.Add(10 * time.Second)) {
		t.Errorf("expected next due %s, got %s", c.t.Add(10*time.Second), sched.NextDueAt)
	}
}

func TestTick_RetriesAfterFailure(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemStore()
	store.createErr = errors.New("db down")

	s, err := New(Config{
		Schedules: []domain.Schedule{intervalSchedule("ping", 10)},
		Store:     store,
		Clock:     c.Now,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	due := c.t.Add(10 * time.Second)
	c.t = due
	if n := s.Tick(context.Background()); n != 0 {
		t.Fatalf("expected failed fire, got %d", n)
	}
	if got := s.Schedules()[0].NextDueAt; !got.Equal(due) {
		t.Errorf("due time should not advance after failure, got %s", got)
	}

	store.createErr = nil
	c.t = due.Add(time.Second)
	if n := s.Tick(context.Background()); n != 1 {
		t.Fatalf("expected retry to fire, got %d", n)
	}
	if _, err := store.GetByIdempotencyKey(context.Background(), IdempotencyKey("ping", due)); err != nil {
		t.Errorf("retry should reuse the original due key: %v", err)
	}
}

func TestTick_Duplicate(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemStore()
	pub := &recordingPublisher{}

	due := c.t.Add(10 * time.Second)
	existing := domain.NewExecution(domain.ExecuteRequest{})
	existing.IdempotencyKey = IdempotencyKey("ping", due)
	store.byKey[existing.IdempotencyKey] = existing

	s, err := New(Config{
		Schedules: []domain.Schedule{intervalSchedule("ping", 10)},
		Store:     store,
		Publisher: pub,
		Clock:     c.Now,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	c.t = due
	s.Tick(context.Background())

	if len(pub.ids) != 0 {
		t.Errorf("duplicate should not be published, got %v", pub.ids)
	}
	if id := s.Schedules()[0].LastExecutionID; id == nil || *id != existing.ID {
		t.Errorf("expected last execution %s, got %v", existing.ID, id)
	}
}

func TestTick_Runner(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	var got *domain.ExecuteRequest
	runner := runnerFunc(func(_ context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error) {
		got = req
		return &domain.FlowExecutionResult{Success: true}, nil
	})

	s, err := New(Config{
		Schedules: []domain.Schedule{intervalSchedule("ping", 5)},
		Runner:    runner,
		Clock:     c.Now,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	c.t = c.t.Add(5 * time.Second)
	if n := s.Tick(context.Background()); n != 1 {
		t.Fatalf("expected 1 fire, got %d", n)
	}
	if got == nil || got.Trigger.Type != domain.TriggerScheduled {
		t.Errorf("expected scheduled trigger, got %+v", got)
	}
}

func TestRun_NotLeader(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemStore()

	sched := intervalSchedule("ping", 1)
	s, err := New(Config{
		Schedules:    []domain.Schedule{sched},
		Store:        store,
		Leader:       fixedLeader(false),
		TickInterval: 5 * time.Millisecond,
		Clock:        func() time.Time { return c.t.Add(time.Hour) },
		Logger:       discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if len(store.byKey) != 0 {
		t.Errorf("non-leader should not fire, got %d executions", len(store.byKey))
	}
}

func TestScheduledRequest_DoesNotMutateSchedule(t *testing.T) {
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sched := intervalSchedule("ping", 5)
	sched.Request.Trigger.Metadata = map[string]any{"source": "cron"}
	sched.NextDueAt = &due

	req := scheduledRequest(&sched)

	if req.Trigger.Metadata["dueAt"] != "2026-01-01T09:00:00Z" {
		t.Errorf("expected dueAt metadata, got %v", req.Trigger.Metadata["dueAt"])
	}
	if _, ok := sched.Request.Trigger.Metadata["schedule"]; ok {
		t.Error("schedule request metadata was mutated")
	}
	if sched.Request.Trigger.Type != "" {
		t.Errorf("schedule trigger type was mutated: %q", sched.Request.Trigger.Type)
	}
}

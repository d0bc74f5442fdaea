package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/mq"
	"github.com/shaiso/AgentFlow/internal/repo"
)

// memStore — ExecutionStore в памяти.
type memStore struct {
	mu         sync.Mutex
	executions map[uuid.UUID]*domain.Execution
	claimErr   error
	updates    int
}

func newMemStore(execs ...*domain.Execution) *memStore {
	s := &memStore{executions: make(map[uuid.UUID]*domain.Execution)}
	for _, e := range execs {
		s.executions[e.ID] = e
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) ListPending(_ context.Context, limit int) ([]domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Execution
	for _, e := range s.executions {
		if e.Status == domain.ExecutionStatusPending && len(out) < limit {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memStore) ClaimPending(_ context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return s.claimErr
	}
	stored := s.executions[e.ID]
	if stored.Status != domain.ExecutionStatusPending {
		return repo.ErrNotFound
	}
	stored.Status = e.Status
	stored.StartedAt = e.StartedAt
	return nil
}

func (s *memStore) Update(_ context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.executions[e.ID] = &cp
	s.updates++
	return nil
}

type runnerFunc func(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error)

func (f runnerFunc) Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error) {
	return f(ctx, req)
}

type recordingPublisher struct {
	payloads []mq.ExecutionCompletedPayload
}

func (p *recordingPublisher) PublishExecutionCompleted(_ context.Context, payload mq.ExecutionCompletedPayload) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

func succeed(tokens int) runnerFunc {
	return func(context.Context, *domain.ExecuteRequest) (*domain.FlowExecutionResult, error) {
		return &domain.FlowExecutionResult{
			Success:         true,
			Output:          "done",
			TotalTokenUsage: domain.TokenUsage{TotalTokens: tokens},
		}, nil
	}
}

func pendingExecution() *domain.Execution {
	return domain.NewExecution(domain.ExecuteRequest{
		AgentID:  "agent-1",
		FlowName: "support",
		Trigger:  domain.TriggerData{Type: domain.TriggerManual, Content: "hi"},
	})
}

// --- Process Tests ---

func TestWorker_Process_Success(t *testing.T) {
	exec := pendingExecution()
	store := newMemStore(exec)
	pub := &recordingPublisher{}

	var gotContent string
	w := New(Config{
		Store: store,
		Runner: runnerFunc(func(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error) {
			gotContent = req.Trigger.Content
			return succeed(42)(ctx, req)
		}),
		Publisher: pub,
	})

	if err := w.process(context.Background(), exec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotContent != "hi" {
		t.Errorf("runner should receive stored request, got %q", gotContent)
	}

	saved := store.executions[exec.ID]
	if saved.Status != domain.ExecutionStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", saved.Status)
	}
	if saved.Result == nil || saved.Result.Output != "done" {
		t.Errorf("expected stored result, got %+v", saved.Result)
	}
	if saved.StartedAt == nil || saved.FinishedAt == nil {
		t.Error("expected start and finish times")
	}

	if len(pub.payloads) != 1 {
		t.Fatalf("expected 1 completion event, got %d", len(pub.payloads))
	}
	if p := pub.payloads[0]; p.Status != "SUCCEEDED" || p.TotalTokens != 42 || p.AgentID != "agent-1" {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestWorker_Process_Failures(t *testing.T) {
	tests := []struct {
		name    string
		runner  runnerFunc
		wantErr string
	}{
		{
			name: "flow failed",
			runner: func(context.Context, *domain.ExecuteRequest) (*domain.FlowExecutionResult, error) {
				return &domain.FlowExecutionResult{Success: false, Error: "Token limit exceeded: 120/100"}, nil
			},
			wantErr: "Token limit exceeded: 120/100",
		},
		{
			name: "runner error",
			runner: func(context.Context, *domain.ExecuteRequest) (*domain.FlowExecutionResult, error) {
				return nil, errors.New("nil request")
			},
			wantErr: "nil request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := pendingExecution()
			store := newMemStore(exec)
			pub := &recordingPublisher{}
			w := New(Config{Store: store, Runner: tt.runner, Publisher: pub})

			if err := w.process(context.Background(), exec.ID); err != nil {
				t.Fatalf("flow failure is not a worker error: %v", err)
			}

			saved := store.executions[exec.ID]
			if saved.Status != domain.ExecutionStatusFailed {
				t.Errorf("expected FAILED, got %s", saved.Status)
			}
			if saved.Error != tt.wantErr {
				t.Errorf("expected %q, got %q", tt.wantErr, saved.Error)
			}
			if len(pub.payloads) != 1 || pub.payloads[0].Error != tt.wantErr {
				t.Errorf("unexpected completion events %+v", pub.payloads)
			}
		})
	}
}

func TestWorker_Process_Skips(t *testing.T) {
	done := pendingExecution()
	done.MarkSucceeded()
	claimed := pendingExecution()

	store := newMemStore(done, claimed)
	store.claimErr = repo.ErrNotFound

	runs := 0
	w := New(Config{Store: store, Runner: runnerFunc(func(ctx context.Context, req *domain.ExecuteRequest) (*domain.FlowExecutionResult, error) {
		runs++
		return succeed(0)(ctx, req)
	})})

	tests := []struct {
		name string
		id   uuid.UUID
		want error
	}{
		{"missing", uuid.New(), ErrExecutionNotFound},
		{"finished", done.ID, ErrExecutionNotPending},
		{"claimed elsewhere", claimed.ID, ErrExecutionNotPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.process(context.Background(), tt.id)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !isSkippable(err) {
				t.Errorf("expected skippable error, got %v", err)
			}
		})
	}

	if runs != 0 {
		t.Errorf("runner must not be called, got %d calls", runs)
	}
}

// --- Handler Tests ---

func TestWorker_HandleExecutionPending(t *testing.T) {
	exec := pendingExecution()
	store := newMemStore(exec)
	w := New(Config{Store: store, Runner: succeed(1)})

	msg, _ := mq.NewMessage(mq.MessageTypeExecutionPending, mq.ExecutionPendingPayload{ExecutionID: exec.ID})
	if err := w.handleExecutionPending(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.executions[exec.ID].Status != domain.ExecutionStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", store.executions[exec.ID].Status)
	}

	// повторная доставка подтверждается без выполнения
	if err := w.handleExecutionPending(context.Background(), msg); err != nil {
		t.Errorf("redelivery should be acked, got %v", err)
	}

	bad := &mq.Message{ID: "bad", Type: mq.MessageTypeExecutionPending, Payload: json.RawMessage(`"oops"`)}
	if err := w.handleExecutionPending(context.Background(), bad); !errors.Is(err, mq.ErrPermanent) {
		t.Errorf("expected permanent error for malformed payload, got %v", err)
	}
}

// --- Poll Tests ---

func TestWorker_Poll(t *testing.T) {
	a, b := pendingExecution(), pendingExecution()
	store := newMemStore(a, b)
	w := New(Config{Store: store, Runner: succeed(0), BatchSize: 10})

	w.poll(context.Background())

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		if got := store.executions[id].Status; got != domain.ExecutionStatusSucceeded {
			t.Errorf("execution %s: expected SUCCEEDED, got %s", id, got)
		}
	}
	if store.updates != 2 {
		t.Errorf("expected 2 updates, got %d", store.updates)
	}
}

func TestWorker_StartStop(t *testing.T) {
	w := New(Config{Store: newMemStore(), Runner: succeed(0)})
	w.Start(context.Background())
	w.Stop()
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/orchestrator"
	"github.com/shaiso/AgentFlow/internal/repo"
)

// memStore — ExecutionStore в памяти.
type memStore struct {
	mu         sync.Mutex
	executions map[uuid.UUID]domain.Execution
}

func newMemStore() *memStore {
	return &memStore{executions: make(map[uuid.UUID]domain.Execution)}
}

func (s *memStore) Create(_ context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.IdempotencyKey != "" {
		for _, existing := range s.executions {
			if existing.IdempotencyKey == e.IdempotencyKey {
				return repo.ErrAlreadyExists
			}
		}
	}
	s.executions[e.ID] = *e
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &e, nil
}

func (s *memStore) GetByIdempotencyKey(_ context.Context, key string) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.executions {
		if e.IdempotencyKey == key {
			return &e, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *memStore) List(_ context.Context, f repo.ExecutionFilter) ([]domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Execution
	for _, e := range s.executions {
		if f.AgentID != "" && e.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) Update(_ context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = *e
	return nil
}

type recordingPublisher struct {
	ids []uuid.UUID
	err error
}

func (p *recordingPublisher) PublishExecutionPending(_ context.Context, id uuid.UUID) error {
	p.ids = append(p.ids, id)
	return p.err
}

func newTestServer(store ExecutionStore, pub PendingPublisher) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(Config{
		Runner:    orchestrator.New(orchestrator.Config{Logger: logger}),
		Store:     store,
		Publisher: pub,
		Logger:    logger,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func echoRequest(content string) domain.ExecuteRequest {
	return domain.ExecuteRequest{
		AgentID:  "agent-1",
		FlowName: "echo",
		Flow: domain.AgentFlow{Steps: []domain.AgentFlowStep{{
			ID:     "echo",
			Type:   "transform",
			Config: map[string]any{"operation": "passthrough"},
			Inputs: map[string]string{"text": "{{trigger.content}}"},
		}}},
		Trigger: domain.TriggerData{Content: content},
	}
}

// --- Execute Tests ---

func TestExecute_Sync(t *testing.T) {
	store := newMemStore()
	mux := newTestServer(store, nil)

	rec := do(t, mux, http.MethodPost, "/api/v1/executions", echoRequest("hello"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got := decodeData[ExecutionResponse](t, rec)
	if got.Status != string(domain.ExecutionStatusSucceeded) {
		t.Errorf("expected status %q, got %q (error %q)", domain.ExecutionStatusSucceeded, got.Status, got.Error)
	}
	if got.Result == nil || len(got.Result.Steps) != 1 {
		t.Fatalf("expected result with one step, got %+v", got.Result)
	}

	stored, err := store.GetByID(context.Background(), got.ID)
	if err != nil {
		t.Fatalf("execution not stored: %v", err)
	}
	if stored.Status != domain.ExecutionStatusSucceeded {
		t.Errorf("expected stored status SUCCEEDED, got %q", stored.Status)
	}
	if stored.Request.Trigger.Type != domain.TriggerManual {
		t.Errorf("expected default trigger %q, got %q", domain.TriggerManual, stored.Request.Trigger.Type)
	}
}

func TestExecute_WithoutStore(t *testing.T) {
	mux := newTestServer(nil, nil)

	rec := do(t, mux, http.MethodPost, "/api/v1/executions", echoRequest("hi"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestExecute_BadRequests(t *testing.T) {
	unknownTrigger := echoRequest("x")
	unknownTrigger.Trigger.Type = "carrier_pigeon"


	tests := []struct {
		name   string
		body   any
		status int
		code   ErrorCode
		stepID string
	}{
		{"malformed json", "{", http.StatusBadRequest, ErrCodeBadRequest, ""},
		{"unknown field", `{"flow":{"steps":[]},"bogus":1}`, http.StatusBadRequest, ErrCodeBadRequest, ""},
		{"unknown trigger", unknownTrigger, http.StatusBadRequest, ErrCodeBadRequest, ""},
		{"negative maxSteps", `{"flow":{"steps":[]},"maxSteps":-1}`, http.StatusBadRequest, ErrCodeBadRequest, ""},
	}

	mux := newTestServer(newMemStore(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, "/api/v1/executions", tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			detail := decodeError(t, rec)
			if detail.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, detail.Code)
			}
			if detail.StepID != tt.stepID {
				t.Errorf("expected stepId %q, got %q", tt.stepID, detail.StepID)
			}
		})
	}
}

// --- Submit Tests ---

func TestExecute_RunsFlowsWithValidationFindings(t *testing.T) {
	unknownEntry := echoRequest("hi")
	unknownEntry.Flow.EntryPoint = "missing"

	badCondition := echoRequest("hi")
	badCondition.Flow.Steps = append(badCondition.Flow.Steps, domain.AgentFlowStep{
		ID:        "guarded",
		Type:      "transform",
		Condition: "{{ a === }}",
		Config:    map[string]any{"operation": "passthrough"},
	})

	continueOnError := false
	unknownType := echoRequest("hi")
	unknownType.AbortOnError = &continueOnError
	unknownType.Flow.Steps = append([]domain.AgentFlowStep{{ID: "fly", Type: "teleport"}}, unknownType.Flow.Steps...)

	tests := []struct {
		name     string
		req      domain.ExecuteRequest
		success  bool
		statuses []domain.StepStatus
		stepID   string
	}{
		{
			name:     "unknown entry point falls back to array order",
			req:      unknownEntry,
			success:  true,
			statuses: []domain.StepStatus{domain.StepStatusCompleted},
		},
		{
			name:     "malformed condition skips the step",
			req:      badCondition,
			success:  true,
			statuses: []domain.StepStatus{domain.StepStatusCompleted, domain.StepStatusSkipped},
			stepID:   "guarded",
		},
		{
			name:     "unknown type continues when abortOnError is false",
			req:      unknownType,
			success:  true,
			statuses: []domain.StepStatus{domain.StepStatusError, domain.StepStatusCompleted},
			stepID:   "fly",
		},
	}

	mux := newTestServer(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, "/api/v1/executions", tt.req, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			got := decodeData[ExecutionResponse](t, rec)
			if got.Result == nil {
				t.Fatalf("expected result, got %+v", got)
			}
			if got.Result.Success != tt.success {
				t.Errorf("expected success %t, got %t (error %q)", tt.success, got.Result.Success, got.Result.Error)
			}
			if len(got.Result.Steps) != len(tt.statuses) {
				t.Fatalf("expected %d traces, got %+v", len(tt.statuses), got.Result.Steps)
			}
			for i, want := range tt.statuses {
				if got.Result.Steps[i].Status != want {
					t.Errorf("step %d: expected %q, got %q", i, want, got.Result.Steps[i].Status)
				}
			}
			if tt.success && got.Result.Output != "hi" {
				t.Errorf("expected output %q, got %v", "hi", got.Result.Output)
			}
			if len(got.Warnings) == 0 {
				t.Fatal("expected validation findings in warnings")
			}
			if tt.stepID != "" && got.Warnings[0].StepID != tt.stepID {
				t.Errorf("expected warning for step %q, got %+v", tt.stepID, got.Warnings)
			}
		})
	}
}

func TestExecute_Strict(t *testing.T) {
	badNext := echoRequest("x")
	badNext.Flow.EntryPoint = "echo"
	badNext.Flow.Steps[0].Next = domain.Next("missing")

	mux := newTestServer(newMemStore(), nil)

	rec := do(t, mux, http.MethodPost, "/api/v1/executions?strict=true", badNext, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	detail := decodeError(t, rec)
	if detail.Code != ErrCodeInvalidFlow || detail.StepID != "echo" {
		t.Errorf("expected INVALID_FLOW for step echo, got %+v", detail)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/executions?strict=maybe", badNext, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad strict value, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/executions?strict=true", echoRequest("ok"), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for valid flow in strict mode, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmit_AcceptsFlowWithValidationFindings(t *testing.T) {
	req := echoRequest("hi")
	req.Flow.EntryPoint = "missing"

	mux := newTestServer(newMemStore(), nil)
	rec := do(t, mux, http.MethodPost, "/api/v1/executions/async", req, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeData[ExecutionResponse](t, rec); len(got.Warnings) == 0 {
		t.Error("expected validation findings in warnings")
	}
}

func TestSubmit_Queues(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	mux := newTestServer(store, pub)

	rec := do(t, mux, http.MethodPost, "/api/v1/executions/async", echoRequest("later"), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	got := decodeData[ExecutionResponse](t, rec)
	if got.Status != string(domain.ExecutionStatusPending) {
		t.Errorf("expected PENDING, got %q", got.Status)
	}
	if len(pub.ids) != 1 || pub.ids[0] != got.ID {
		t.Errorf("expected publish of %s, got %v", got.ID, pub.ids)
	}
}

func TestSubmit_Idempotent(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	mux := newTestServer(store, pub)
	headers := map[string]string{IdempotencyHeader: "order-42"}

	first := do(t, mux, http.MethodPost, "/api/v1/executions/async", echoRequest("a"), headers)
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", first.Code)
	}
	second := do(t, mux, http.MethodPost, "/api/v1/executions/async", echoRequest("a"), headers)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 for repeated key, got %d", second.Code)
	}

	a := decodeData[ExecutionResponse](t, first)
	b := decodeData[ExecutionResponse](t, second)
	if a.ID != b.ID {
		t.Errorf("expected same execution, got %s and %s", a.ID, b.ID)
	}
	if len(pub.ids) != 1 {
		t.Errorf("expected 1 publish, got %d", len(pub.ids))
	}
}

func TestSubmit_PublishFailureStillAccepted(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	mux := newTestServer(newMemStore(), pub)

	rec := do(t, mux, http.MethodPost, "/api/v1/executions/async", echoRequest("x"), nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestSubmit_RequiresStore(t *testing.T) {
	mux := newTestServer(nil, nil)

	rec := do(t, mux, http.MethodPost, "/api/v1/executions/async", echoRequest("x"), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != ErrCodeUnavailable {
		t.Errorf("expected code %q, got %q", ErrCodeUnavailable, detail.Code)
	}
}

// --- Query Tests ---

func TestGetExecution(t *testing.T) {
	store := newMemStore()
	mux := newTestServer(store, nil)

	created := decodeData[ExecutionResponse](t,
		do(t, mux, http.MethodPost, "/api/v1/executions", echoRequest("hi"), nil))

	rec := do(t, mux, http.MethodGet, "/api/v1/executions/"+created.ID.String(), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeData[ExecutionResponse](t, rec); got.ID != created.ID {
		t.Errorf("expected id %s, got %s", created.ID, got.ID)
	}

	if rec := do(t, mux, http.MethodGet, "/api/v1/executions/"+uuid.NewString(), nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/executions/not-a-uuid", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestListExecutions(t *testing.T) {
	store := newMemStore()
	mux := newTestServer(store, &recordingPublisher{})

	do(t, mux, http.MethodPost, "/api/v1/executions", echoRequest("done"), nil)
	do(t, mux, http.MethodPost, "/api/v1/executions/async", echoRequest("queued"), nil)

	tests := []struct {
		query  string
		status int
		total  int
	}{
		{"", http.StatusOK, 2},
		{"?status=pending", http.StatusOK, 1},
		{"?status=SUCCEEDED&agent_id=agent-1", http.StatusOK, 1},
		{"?agent_id=other", http.StatusOK, 0},
		{"?status=sleeping", http.StatusBadRequest, 0},
		{"?limit=-1", http.StatusBadRequest, 0},
		{"?offset=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, mux, http.MethodGet, "/api/v1/executions"+tt.query, nil, nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var resp ListResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Total != tt.total {
				t.Errorf("expected total %d, got %d", tt.total, resp.Total)
			}
		})
	}
}

// --- ValidateFlow Tests ---

func TestValidateFlow(t *testing.T) {
	mux := newTestServer(nil, nil)

	tests := []struct {
		name     string
		flow     domain.AgentFlow
		valid    bool
		stepID   string
		warnings int
	}{
		{
			name:  "valid",
			flow:  echoRequest("").Flow,
			valid: true,
		},
		{
			name:     "empty flow warns",
			flow:     domain.AgentFlow{},
			valid:    true,
			warnings: 1,
		},
		{
			name: "unknown step type",
			flow: domain.AgentFlow{Steps: []domain.AgentFlowStep{
				{ID: "fly", Type: "teleport"},
			}},
			valid:  false,
			stepID: "fly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, "/api/v1/flows/validate", tt.flow, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			got := decodeData[ValidateFlowResponse](t, rec)
			if got.Valid != tt.valid {
				t.Errorf("expected valid=%v, got %v (%s)", tt.valid, got.Valid, got.Error)
			}
			if got.StepID != tt.stepID {
				t.Errorf("expected stepId %q, got %q", tt.stepID, got.StepID)
			}
			if len(got.Warnings) != tt.warnings {
				t.Errorf("expected %d warnings, got %v", tt.warnings, got.Warnings)
			}
		})
	}
}

// --- Middleware Tests ---

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestLogging_RequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name     string
		incoming string
	}{
		{name: "propagated", incoming: "req-42"},
		{name: "generated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if tt.incoming != "" && got != tt.incoming {
				t.Errorf("expected %q, got %q", tt.incoming, got)
			}
			if got == "" {
				t.Error("expected request id header")
			}
			if rec.Code != http.StatusTeapot {
				t.Errorf("expected 418, got %d", rec.Code)
			}
		})
	}
}

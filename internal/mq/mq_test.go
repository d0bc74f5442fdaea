package mq

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// --- Message Tests ---

func TestNewMessage_ParsePayload(t *testing.T) {
	id := uuid.New()
	msg, err := NewMessage(MessageTypeExecutionPending, ExecutionPendingPayload{ExecutionID: id})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Errorf("expected id and timestamp, got %+v", msg)
	}

	// сообщение проходит через JSON, как в очереди
	body, _ := json.Marshal(msg)
	var received Message
	if err := json.Unmarshal(body, &received); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, err := ParsePayload[ExecutionPendingPayload](&received)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.ExecutionID != id {
		t.Errorf("expected %s, got %s", id, payload.ExecutionID)
	}
}

func TestParsePayload_Errors(t *testing.T) {
	if _, err := ParsePayload[ExecutionPendingPayload](&Message{ID: "x"}); err == nil {
		t.Error("expected error for empty payload")
	}

	msg := &Message{ID: "y", Type: MessageTypeExecutionPending, Payload: json.RawMessage(`{"execution_id": 5}`)}
	if _, err := ParsePayload[ExecutionPendingPayload](msg); err == nil {
		t.Error("expected error for invalid payload")
	}
}

// --- Consumer Tests ---

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name        string
		redelivered bool
		err         error
		want        bool
	}{
		{"first failure", false, errors.New("db down"), true},
		{"second failure", true, errors.New("db down"), false},
		{"permanent", false, fmt.Errorf("bad payload: %w", ErrPermanent), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRequeue(tt.redelivered, tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// --- Connection Tests ---

func TestNextDelay(t *testing.T) {
	if got := nextDelay(time.Second); got != 2*time.Second {
		t.Errorf("expected 2s, got %v", got)
	}
	if got := nextDelay(20 * time.Second); got != maxReconnectDelay {
		t.Errorf("expected cap %v, got %v", maxReconnectDelay, got)
	}
}

func TestURLFromEnv(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "amqp://u:p@mq:5672/")
	if got := URLFromEnv(); got != "amqp://u:p@mq:5672/" {
		t.Errorf("expected env url, got %q", got)
	}
}

// --- Topology Tests ---

func TestTopologyInfo(t *testing.T) {
	info := TopologyInfo()
	for _, want := range []string{
		"agentflow.executions --pending--> executions.pending (dlx agentflow.dlq)",
		"agentflow.executions --completed--> execution.completed",
		"agentflow.dlq --executions--> dlq.executions",
	} {
		if !strings.Contains(info, want) {
			t.Errorf("topology info missing %q:\n%s", want, info)
		}
	}
}

package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения.
type MessageType string

const (
	MessageTypeExecutionPending   MessageType = "execution.pending"
	MessageTypeExecutionCompleted MessageType = "execution.completed"
)

// Message — конверт сообщения в очереди.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage создаёт сообщение с сериализованным payload.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ParsePayload декодирует payload сообщения.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T
	if len(msg.Payload) == 0 {
		return out, fmt.Errorf("message %s has empty payload", msg.ID)
	}
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return out, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return out, nil
}

// ExecutionPendingPayload — запрос на выполнение, сохранённый в БД.
type ExecutionPendingPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
}

// ExecutionCompletedPayload — итог выполнения.
type ExecutionCompletedPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	FlowName    string    `json:"flow_name,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	TotalTokens int       `json:"total_tokens"`
	DurationMs  int64     `json:"duration_ms"`
}

// Publisher публикует события выполнений.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, key RoutingKey, msgType MessageType, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.conn.Publish(ctx, ExchangeExecutions, key, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msgType),
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return err
	}

	p.logger.Debug("message published", "type", msgType, "message_id", msg.ID)
	return nil
}

// PublishExecutionPending ставит выполнение в очередь worker.
func (p *Publisher) PublishExecutionPending(ctx context.Context, executionID uuid.UUID) error {
	return p.publish(ctx, RoutingKeyPending, MessageTypeExecutionPending, ExecutionPendingPayload{ExecutionID: executionID})
}

// PublishExecutionCompleted публикует итог выполнения.
func (p *Publisher) PublishExecutionCompleted(ctx context.Context, payload ExecutionCompletedPayload) error {
	return p.publish(ctx, RoutingKeyCompleted, MessageTypeExecutionCompleted, payload)
}

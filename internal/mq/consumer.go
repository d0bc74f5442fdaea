package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPermanent помечает ошибку, которую повтор не исправит.
// Такое сообщение сразу уходит в DLQ.
var ErrPermanent = errors.New("permanent failure")

// Handler обрабатывает сообщение. Nil — ack, ошибка — nack.
type Handler func(ctx context.Context, msg *Message) error

// Consumer потребляет сообщения одной очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	Queue   Queue
	Handler Handler

	// Prefetch — число сообщений, обрабатываемых параллельно (default: 1).
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", string(cfg.Queue)),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: max(cfg.Prefetch, 1),
	}
}

// Run потребляет сообщения до отмены ctx. После разрыва соединения
// ждёт переподключения и подписывается снова.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("subscribe failed", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("consumer waiting for reconnect")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.ConsumeChannel()
	if ch == nil {
		return nil, ErrNotConnected
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return ch.Consume(string(c.queue), "", false, false, false, false, nil)
}

// drain обрабатывает доставки в prefetch горутинах до закрытия канала
// или отмены ctx.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for range c.prefetch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.handle(ctx, d)
				}
			}
		}()
	}
	wg.Wait()
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error("malformed message, dead-lettering", "error", err)
		d.Nack(false, false)
		return
	}

	err := c.handler(ctx, &msg)
	if err == nil {
		d.Ack(false)
		return
	}

	requeue := shouldRequeue(d.Redelivered, err)
	c.logger.Error("message handler failed",
		"message_id", msg.ID,
		"type", msg.Type,
		"redelivered", d.Redelivered,
		"requeue", requeue,
		"error", err,
	)
	d.Nack(false, requeue)
}

// shouldRequeue решает, вернуть ли сообщение в очередь после ошибки.
// Сообщение повторяется один раз; постоянные ошибки не повторяются.
func shouldRequeue(redelivered bool, err error) bool {
	if errors.Is(err, ErrPermanent) {
		return false
	}
	return !redelivered
}

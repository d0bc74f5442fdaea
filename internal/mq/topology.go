package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeExecutions Exchange = "agentflow.executions"
	ExchangeDLQ        Exchange = "agentflow.dlq"
)

const (
	// QueueExecutionsPending — запросы на выполнение. Потребитель: worker.
	QueueExecutionsPending Queue = "executions.pending"

	// QueueExecutionCompleted — события о завершении. Потребитель: внешние системы.
	QueueExecutionCompleted Queue = "execution.completed"

	// QueueDLQExecutions — сообщения, которые не удалось обработать.
	QueueDLQExecutions Queue = "dlq.executions"
)

const (
	RoutingKeyPending   RoutingKey = "pending"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDead      RoutingKey = "executions"
)

type queueDecl struct {
	queue    Queue
	exchange Exchange
	key      RoutingKey
	args     amqp.Table
}

// topology — все очереди и их привязки.
var topology = []queueDecl{
	{
		queue:    QueueExecutionsPending,
		exchange: ExchangeExecutions,
		key:      RoutingKeyPending,
		args: amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDead),
		},
	},
	{queue: QueueExecutionCompleted, exchange: ExchangeExecutions, key: RoutingKeyCompleted},
	{queue: QueueDLQExecutions, exchange: ExchangeDLQ, key: RoutingKeyDead},
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeExecutions, ExchangeDLQ} {
			if err := ch.ExchangeDeclare(string(ex), amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, d := range topology {
			if _, err := ch.QueueDeclare(string(d.queue), true, false, false, false, d.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", d.queue, err)
			}
			if err := ch.QueueBind(string(d.queue), string(d.key), string(d.exchange), false, nil); err != nil {
				return fmt.Errorf("bind %s to %s: %w", d.queue, d.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo описывает топологию для логов при старте.
func TopologyInfo() string {
	var b strings.Builder
	for _, d := range topology {
		fmt.Fprintf(&b, "%s --%s--> %s", d.exchange, d.key, d.queue)
		if dlx, ok := d.args["x-dead-letter-exchange"]; ok {
			fmt.Fprintf(&b, " (dlx %s)", dlx)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

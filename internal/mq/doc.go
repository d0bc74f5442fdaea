// Package mq — RabbitMQ транспорт выполнений.
//
// API и scheduler публикуют execution.pending в agentflow.executions;
// worker потребляет executions.pending и публикует execution.completed.
// Сообщения, не обработанные после повтора, уходят в dlq.executions.
package mq

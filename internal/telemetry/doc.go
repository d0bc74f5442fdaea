// Package telemetry обеспечивает наблюдаемость сервисов AgentFlow.
//
//   - logging.go — slog с уровнем LOG_LEVEL и форматом LOG_FORMAT,
//     helpers для execution_id, agent_id, step_id
//   - metrics.go — счётчики и гистограммы выполнения flow и шагов
//
// Сервисы отдают метрики на /metrics через promhttp.
package telemetry

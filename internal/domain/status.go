package domain

// ExecutionStatus — статус выполнения flow.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
type ExecutionStatus string

const (
	// ExecutionStatusPending — запрос принят и ждёт воркера.
	ExecutionStatusPending ExecutionStatus = "PENDING"

	// ExecutionStatusRunning — flow выполняется.
	ExecutionStatusRunning ExecutionStatus = "RUNNING"

	// ExecutionStatusSucceeded — flow завершился успешно.
	ExecutionStatusSucceeded ExecutionStatus = "SUCCEEDED"

	// ExecutionStatusFailed — flow завершился ошибкой.
	ExecutionStatusFailed ExecutionStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSucceeded, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление статуса.
func (s ExecutionStatus) String() string {
	return string(s)
}

// ParseExecutionStatus парсит строку в ExecutionStatus.
// Неизвестные значения трактуются как PENDING.
func ParseExecutionStatus(s string) ExecutionStatus {
	switch s {
	case "RUNNING":
		return ExecutionStatusRunning
	case "SUCCEEDED":
		return ExecutionStatusSucceeded
	case "FAILED":
		return ExecutionStatusFailed
	default:
		return ExecutionStatusPending
	}
}

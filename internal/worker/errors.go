package worker

import "errors"

var (
	// ErrExecutionNotFound — выполнения нет в БД.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionNotPending — выполнение уже запущено или завершено.
	ErrExecutionNotPending = errors.New("execution is not pending")
)

package orchestrator

import "errors"

// Ошибки выполнения flow. В FlowExecutionResult и трассе они
// попадают строкой через Error().
var (
	// ErrMaxStepsReached — превышен предел числа итераций.
	ErrMaxStepsReached = errors.New("Max steps limit reached")

	// ErrStepNotFound — ID из очереди отсутствует в определении flow.
	ErrStepNotFound = errors.New("step not found in flow definition")

	// ErrExecutorNotFound — для типа шага нет исполнителя.
	ErrExecutorNotFound = errors.New("no executor registered for step type")

	// ErrExecutionCancelled — контекст выполнения отменён.
	ErrExecutionCancelled = errors.New("execution cancelled")

	// ErrStepPanicked — исполнитель шага запаниковал.
	ErrStepPanicked = errors.New("step executor panicked")

	// ErrNilRequest — Execute вызван без запроса.
	ErrNilRequest = errors.New("execute request is nil")
)

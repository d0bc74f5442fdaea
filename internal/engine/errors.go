package engine

import (
	"errors"
	"fmt"
)

// Ошибки статической проверки flow. Проверяются через errors.Is
// на *ValidationError.
var (
	ErrEmptyStepID       = errors.New("step has empty ID")
	ErrDuplicateStepID   = errors.New("duplicate step ID")
	ErrUnknownStepType   = errors.New("unknown step type")
	ErrUnknownNextStep   = errors.New("next refers to unknown step")
	ErrUnknownEntryPoint = errors.New("entry point refers to unknown step")
	ErrInvalidExpression = errors.New("invalid expression")
)

// ErrExpressionSyntax — выражение не разбирается лексером или парсером.
var ErrExpressionSyntax = errors.New("expression syntax error")

// ValidationError привязывает ошибку проверки к шагу и полю.
// StepID пуст для ошибок уровня всего flow.
type ValidationError struct {
	StepID  string
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return withStep(e.StepID, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{StepID: stepID, Field: field, Message: message, Err: err}
}

// Warning — замечание, с которым flow всё равно можно выполнять.
type Warning struct {
	StepID  string `json:"stepId,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return withStep(w.StepID, w.Message)
}

func withStep(stepID, msg string) string {
	if stepID == "" {
		return msg
	}
	return fmt.Sprintf("step %s: %s", stepID, msg)
}

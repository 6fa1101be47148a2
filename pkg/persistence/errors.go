// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTriggerNotFound indicates a trigger was not found by the given identifier.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrTriggerEventNotFound indicates no trigger event exists for the given identifier.
	ErrTriggerEventNotFound = errors.New("trigger event not found")

	// ErrAssignmentNotFound indicates a workflow assignment was not found.
	ErrAssignmentNotFound = errors.New("workflow assignment not found")

	// ErrStageNotFound indicates a stage was not found by the given identifier.
	ErrStageNotFound = errors.New("stage not found")

	// ErrStepNotFound indicates a step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")
)

// TriggerError wraps trigger-related errors with operation context.
type TriggerError struct {
	Op        string // Operation being performed (e.g. "FindDue", "Save")
	TriggerID string // Trigger ID if applicable
	Err       error  // Underlying error
}

func (e *TriggerError) Error() string {
	if e.TriggerID == "" {
		return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for trigger %s: %v", e.Op, e.TriggerID, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

func (e *TriggerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTriggerError creates a new trigger error with context.
func NewTriggerError(op, triggerID string, err error) *TriggerError {
	return &TriggerError{
		Op:        op,
		TriggerID: triggerID,
		Err:       err,
	}
}

// IsNotFound checks whether an error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound) ||
		errors.Is(err, ErrTriggerEventNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrStageNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrTaskNotFound)
}

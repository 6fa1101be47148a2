package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// TriggerMode says how a trigger is activated.
type TriggerMode string

const (
	TriggerModeEvent    TriggerMode = "event"    // fired by entity-change events
	TriggerModeSchedule TriggerMode = "schedule" // fired by the scheduler poller
)

var (
	// ErrInvalidTrigger is returned when trigger validation fails.
	ErrInvalidTrigger = errors.New("invalid trigger definition")
)

// TriggerScope optionally restricts a trigger to one workflow, stage or step.
// Empty fields mean no restriction at that level.
type TriggerScope struct {
	WorkflowID string `json:"workflow_id,omitempty"`
	StageID    string `json:"stage_id,omitempty"`
	StepID     string `json:"step_id,omitempty"`
}

// AutoAdvance is the built-in shortcut action: after the action list runs,
// the executor moves the target stage or step forward through the
// progression engine.
type AutoAdvance struct {
	Enabled bool   `json:"enabled"`
	StageID string `json:"stage_id,omitempty"`
	StepID  string `json:"step_id,omitempty"`
}

// Trigger is a stored automation rule, event- or schedule-activated.
// Exactly one of EventName and Schedule is set, never both, never neither.
// Triggers are soft-disabled rather than deleted while execution history
// references them.
type Trigger struct {
	ID       string      `json:"id"        validate:"required"`
	TenantID string      `json:"tenant_id" validate:"required"`
	Name     string      `json:"name"      validate:"required,min=3"`
	Mode     TriggerMode `json:"mode"      validate:"required,oneof=event schedule"`

	// EventName is set for event mode, e.g. "task.completed" or
	// "field.changed".
	EventName string `json:"event_name,omitempty"`

	// Schedule is set for schedule mode.
	Schedule *ScheduleSpec `json:"schedule,omitempty"`

	Condition   *ConditionNode `json:"condition,omitempty"`
	Scope       TriggerScope   `json:"scope"`
	Actions     []Action       `json:"actions"`
	AutoAdvance AutoAdvance    `json:"auto_advance"`
	Enabled     bool           `json:"enabled"`

	// Execution lock fields, mutated only through the atomic conditional
	// update in the persistence layer.
	IsExecuting bool       `json:"is_executing"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`

	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	NextExecutionAt *time.Time `json:"next_execution_at,omitempty"` // schedule mode only

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var triggerValidator = validator.New()

// Validate checks structural validity and the event/schedule exclusivity
// invariant. Definition errors are rejected here, at authoring time, so the
// runtime never has to crash on them.
func (t *Trigger) Validate() error {
	err := triggerValidator.Struct(t)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}

	switch t.Mode {
	case TriggerModeEvent:
		if t.EventName == "" {
			return fmt.Errorf("%w: event mode requires an event name", ErrInvalidTrigger)
		}

		if t.Schedule != nil {
			return fmt.Errorf("%w: event mode must not carry a schedule", ErrInvalidTrigger)
		}
	case TriggerModeSchedule:
		if t.Schedule == nil {
			return fmt.Errorf("%w: schedule mode requires a schedule", ErrInvalidTrigger)
		}

		if t.EventName != "" {
			return fmt.Errorf("%w: schedule mode must not carry an event name", ErrInvalidTrigger)
		}

		err := t.Schedule.Validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// InScope reports whether the trigger applies to the given workflow, stage
// and step. Empty scope fields match anything.
func (t *Trigger) InScope(workflowID, stageID, stepID string) bool {
	if t.Scope.WorkflowID != "" && t.Scope.WorkflowID != workflowID {
		return false
	}

	if t.Scope.StageID != "" && t.Scope.StageID != stageID {
		return false
	}

	if t.Scope.StepID != "" && t.Scope.StepID != stepID {
		return false
	}

	return true
}

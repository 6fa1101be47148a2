package models

import "time"

// FiringStatus is the overall outcome of one trigger firing.
type FiringStatus string

const (
	FiringStatusSuccess FiringStatus = "success" // every action succeeded
	FiringStatusPartial FiringStatus = "partial" // some actions failed
	FiringStatusFailed  FiringStatus = "failed"  // no action succeeded, or the firing could not run
)

// ActionStatus is the outcome of a single action within a firing.
type ActionStatus string

const (
	ActionStatusSucceeded ActionStatus = "succeeded"
	ActionStatusFailed    ActionStatus = "failed"
	ActionStatusSkipped   ActionStatus = "skipped" // unknown action type
)

// ActionResult records one action's outcome inside a TriggerEvent.
type ActionResult struct {
	Index      int           `json:"index"`
	ActionType ActionType    `json:"action_type"`
	Status     ActionStatus  `json:"status"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// EntityRef points at the entity whose change caused a firing.
type EntityRef struct {
	Type string `json:"type"` // "task", "step", "stage", "assignment", "field"
	ID   string `json:"id"`
}

// TriggerEvent is the immutable audit record of one firing. It is created
// exactly once per firing by the executor and never mutated afterward.
type TriggerEvent struct {
	ID        string    `json:"id"`
	TriggerID string    `json:"trigger_id"`
	TenantID  string    `json:"tenant_id"`
	Entity    EntityRef `json:"entity"`

	// Old/new value pair for field-change events.
	OldValue any `json:"old_value,omitempty"`
	NewValue any `json:"new_value,omitempty"`

	// ScheduledFor is set for schedule-mode firings.
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	FiredAt      time.Time  `json:"fired_at"`

	ActionResults []ActionResult `json:"action_results"`
	Status        FiringStatus   `json:"status"`
	Error         string         `json:"error,omitempty"`
}

// AggregateStatus derives the overall firing status from per-action results.
// Skipped actions count as neither success nor failure; a firing whose every
// action was skipped is still a success (nothing went wrong).
func AggregateStatus(results []ActionResult) FiringStatus {
	var succeeded, failed int

	for _, r := range results {
		switch r.Status {
		case ActionStatusSucceeded:
			succeeded++
		case ActionStatusFailed:
			failed++
		case ActionStatusSkipped:
		}
	}

	switch {
	case failed == 0:
		return FiringStatusSuccess
	case succeeded == 0:
		return FiringStatusFailed
	default:
		return FiringStatusPartial
	}
}

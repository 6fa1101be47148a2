package models

import "time"

// ProgressStatus is the lifecycle state of a task, step, stage or
// assignment. Blocked applies to tasks only; skipped is an administrative
// override and is never reached automatically.
type ProgressStatus string

const (
	StatusPending    ProgressStatus = "pending"
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
	StatusBlocked    ProgressStatus = "blocked"
	StatusSkipped    ProgressStatus = "skipped"
	StatusCancelled  ProgressStatus = "cancelled" // assignment only, terminal
)

// IsTerminal reports whether no further automatic transitions apply.
func (s ProgressStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusSkipped || s == StatusCancelled
}

// WorkflowAssignment is one instantiation of a workflow template against a
// specific client or subject. Mutated only by the progression engine.
type WorkflowAssignment struct {
	ID         string `json:"id"        validate:"required"`
	TenantID   string `json:"tenant_id" validate:"required"`
	WorkflowID string `json:"workflow_id"`
	SubjectID  string `json:"subject_id"` // client the workflow runs against

	Status          ProgressStatus `json:"status"`
	CurrentStageID  string         `json:"current_stage_id,omitempty"`
	Progress        int            `json:"progress"` // 0-100
	CompletedStages int            `json:"completed_stages"`
	TotalStages     int            `json:"total_stages"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Stage is the top level inside an assignment.
type Stage struct {
	ID           string `json:"id" validate:"required"`
	AssignmentID string `json:"assignment_id"`
	Name         string `json:"name"`
	Position     int    `json:"position"`

	Status                     ProgressStatus `json:"status"`
	AutoProgress               bool           `json:"auto_progress"`
	RequireAllChildrenComplete bool           `json:"require_all_children_complete"`
	ProgressConditions         *ConditionNode `json:"progress_conditions,omitempty"`
	Progress                   int            `json:"progress"`
	CurrentStepID              string         `json:"current_step_id,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step is the middle level, owned by a stage.
type Step struct {
	ID       string `json:"id" validate:"required"`
	StageID  string `json:"stage_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`

	Status                     ProgressStatus `json:"status"`
	AutoProgress               bool           `json:"auto_progress"`
	RequireAllChildrenComplete bool           `json:"require_all_children_complete"`
	ProgressConditions         *ConditionNode `json:"progress_conditions,omitempty"`
	Progress                   int            `json:"progress"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Task is the leaf level, owned by a step.
type Task struct {
	ID     string `json:"id" validate:"required"`
	StepID string `json:"step_id"`
	Name   string `json:"name"`

	Status   ProgressStatus `json:"status"`
	Required bool           `json:"required"` // counts toward parent completion
	Priority string         `json:"priority,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Snapshot flattens the task into a field map for condition evaluation.
func (t *Task) Snapshot() map[string]any {
	snap := map[string]any{
		"id":       t.ID,
		"step_id":  t.StepID,
		"name":     t.Name,
		"status":   string(t.Status),
		"required": t.Required,
		"priority": t.Priority,
	}

	for k, v := range t.Fields {
		snap[k] = v
	}

	return snap
}

// ProgressPercent computes the integer completion percentage from child
// counts. Recounting from current state, rather than incrementing a stored
// counter, keeps the rollup idempotent under duplicate or out-of-order
// invocations.
func ProgressPercent(completed, total int) int {
	if total <= 0 {
		return 0
	}

	return int(float64(completed)/float64(total)*100 + 0.5)
}

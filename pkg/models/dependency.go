package models

import "time"

// DependencyType is the scheduling relationship of a task dependency edge.
type DependencyType string

const (
	DependencyFinishToStart  DependencyType = "finish_to_start"
	DependencyStartToStart   DependencyType = "start_to_start"
	DependencyFinishToFinish DependencyType = "finish_to_finish"
	DependencyStartToFinish  DependencyType = "start_to_finish"
)

// TaskDependency is a directed edge: TaskID depends on DependsOnTaskID.
// IsSatisfied is a cache recomputed by the dependency resolver whenever the
// upstream task's status changes; the resolver, not the store, owns its
// meaning.
type TaskDependency struct {
	ID              string         `json:"id"`
	AssignmentID    string         `json:"assignment_id"`
	TaskID          string         `json:"task_id"            validate:"required"`
	DependsOnTaskID string         `json:"depends_on_task_id" validate:"required"`
	Type            DependencyType `json:"type"`
	Lag             time.Duration  `json:"lag"`
	Blocking        bool           `json:"blocking"`
	IsSatisfied     bool           `json:"is_satisfied"`
}

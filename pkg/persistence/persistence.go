// Package persistence provides the data storage abstraction for triggers,
// trigger events and the progression hierarchy.
package persistence

import (
	"context"
	"time"

	"github.com/practiq/automata/pkg/models"
)

// TriggerRepository is the trigger store. Lookups are read-heavy; both
// FindByEvent and FindDue return enabled triggers only and must be backed by
// tenant+event and next-execution indexes respectively.
type TriggerRepository interface {
	SaveTrigger(ctx context.Context, trigger *models.Trigger) error
	TriggerByID(ctx context.Context, id string) (*models.Trigger, error)

	// TriggersByTenant returns every trigger of a tenant, enabled or not,
	// for the audit surface.
	TriggersByTenant(ctx context.Context, tenantID string) ([]*models.Trigger, error)

	// FindByEvent returns the enabled event-mode triggers of a tenant
	// listening on the given event name.
	FindByEvent(ctx context.Context, tenantID, eventName string) ([]*models.Trigger, error)

	// FindDue returns enabled schedule-mode triggers with
	// next_execution_at <= now that are not currently executing.
	FindDue(ctx context.Context, now time.Time) ([]*models.Trigger, error)

	// UpdateExecution persists last_executed_at / next_execution_at and the
	// enabled flag after a firing.
	UpdateExecution(ctx context.Context, trigger *models.Trigger) error
}

// TriggerEventRepository stores the immutable firing audit trail.
type TriggerEventRepository interface {
	SaveTriggerEvent(ctx context.Context, event *models.TriggerEvent) error
	TriggerEventsByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerEvent, error)
}

// ProgressionRepository stores the assignment hierarchy and dependency
// edges. The progression engine recounts child rows on every rollup, so
// reads by parent must be cheap.
type ProgressionRepository interface {
	AssignmentByID(ctx context.Context, id string) (*models.WorkflowAssignment, error)
	SaveAssignment(ctx context.Context, assignment *models.WorkflowAssignment) error

	StagesByAssignment(ctx context.Context, assignmentID string) ([]*models.Stage, error)
	StageByID(ctx context.Context, id string) (*models.Stage, error)
	SaveStage(ctx context.Context, stage *models.Stage) error

	StepsByStage(ctx context.Context, stageID string) ([]*models.Step, error)
	StepByID(ctx context.Context, id string) (*models.Step, error)
	SaveStep(ctx context.Context, step *models.Step) error

	TasksByStep(ctx context.Context, stepID string) ([]*models.Task, error)
	TaskByID(ctx context.Context, id string) (*models.Task, error)
	SaveTask(ctx context.Context, task *models.Task) error

	DependenciesByAssignment(ctx context.Context, assignmentID string) ([]*models.TaskDependency, error)
	SaveDependency(ctx context.Context, dep *models.TaskDependency) error
}

type Persistence interface {
	TriggerRepository() TriggerRepository
	TriggerEventRepository() TriggerEventRepository
	ProgressionRepository() ProgressionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Package collaborators provides the built-in implementations of the action
// side-effect interfaces: repository-backed task creation and field writes,
// and webhook delivery for notifications and agent invocations.
package collaborators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/practiq/automata/pkg/eventbus"
	"github.com/practiq/automata/pkg/events"
	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
)

// RepositoryTaskCreator creates tasks directly in the progression store and
// publishes the resulting entity-change event.
type RepositoryTaskCreator struct {
	logger     *slog.Logger
	repo       persistence.ProgressionRepository
	publisher  eventbus.EventPublisher
	generateID func() string
}

func NewRepositoryTaskCreator(logger *slog.Logger, repo persistence.ProgressionRepository, publisher eventbus.EventPublisher) *RepositoryTaskCreator {
	return &RepositoryTaskCreator{
		logger:     logger.With("module", "task_creator"),
		repo:       repo,
		publisher:  publisher,
		generateID: uuid.NewString,
	}
}

func (c *RepositoryTaskCreator) CreateTask(ctx context.Context, tenantID string, params models.CreateTaskParams) (*models.Task, error) {
	step, err := c.repo.StepByID(ctx, params.StepID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve step for new task: %w", err)
	}

	task := &models.Task{
		ID:       c.generateID(),
		StepID:   step.ID,
		Name:     params.Title,
		Status:   models.StatusPending,
		Required: true,
		Priority: params.Priority,
		Fields:   params.Fields,
	}

	err = c.repo.SaveTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to save created task: %w", err)
	}

	c.logger.InfoContext(ctx, "Created task", "task_id", task.ID, "step_id", step.ID)

	err = c.publisher.Publish(ctx, task.ID, events.EntityChanged{
		BaseEvent: events.BaseEvent{
			Timestamp: time.Now().UTC(),
			TenantID:  tenantID,
		},
		EventName:  "task.created",
		EntityType: "task",
		EntityID:   task.ID,
		StepID:     step.ID,
		StageID:    step.StageID,
		Snapshot:   task.Snapshot(),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish task.created", "task_id", task.ID, "error", err)
	}

	return task, nil
}

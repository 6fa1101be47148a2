package collaborators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/practiq/automata/pkg/eventbus"
	"github.com/practiq/automata/pkg/events"
	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
)

// ErrFieldTargetUnsupported is returned for set_field actions against
// entity kinds that carry no free-form field map.
var ErrFieldTargetUnsupported = errors.New("entity kind does not support field writes")

// RepositoryFieldWriter applies set_field actions to task field maps and
// re-publishes the field.changed event, so field-triggered automations see
// writes made by other automations.
type RepositoryFieldWriter struct {
	logger    *slog.Logger
	repo      persistence.ProgressionRepository
	publisher eventbus.EventPublisher
}

func NewRepositoryFieldWriter(logger *slog.Logger, repo persistence.ProgressionRepository, publisher eventbus.EventPublisher) *RepositoryFieldWriter {
	return &RepositoryFieldWriter{
		logger:    logger.With("module", "field_writer"),
		repo:      repo,
		publisher: publisher,
	}
}

func (w *RepositoryFieldWriter) SetField(ctx context.Context, tenantID string, entity models.EntityRef, field string, value any) error {
	if entity.Type != "task" {
		return fmt.Errorf("%w: %s", ErrFieldTargetUnsupported, entity.Type)
	}

	task, err := w.repo.TaskByID(ctx, entity.ID)
	if err != nil {
		return fmt.Errorf("failed to load task for field write: %w", err)
	}

	oldValue := task.Fields[field]

	if task.Fields == nil {
		task.Fields = make(map[string]any)
	}

	task.Fields[field] = value

	err = w.repo.SaveTask(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to save field write: %w", err)
	}

	err = w.publisher.Publish(ctx, task.ID, events.EntityChanged{
		BaseEvent: events.BaseEvent{
			Timestamp: time.Now().UTC(),
			TenantID:  tenantID,
		},
		EventName:  events.FieldChanged,
		EntityType: entity.Type,
		EntityID:   entity.ID,
		StepID:     task.StepID,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   value,
		Snapshot:   task.Snapshot(),
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish field.changed", "task_id", task.ID, "field", field, "error", err)
	}

	return nil
}

package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/practiq/automata/pkg/models"
)

// TriggerEventRepository stores the immutable firing audit trail. Rows are
// insert-only; there is no update path.
type TriggerEventRepository struct {
	db *sql.DB
}

func NewTriggerEventRepository(db *sql.DB) *TriggerEventRepository {
	return &TriggerEventRepository{db: db}
}

func (r *TriggerEventRepository) SaveTriggerEvent(ctx context.Context, event *models.TriggerEvent) error {
	oldValue, err := json.Marshal(event.OldValue)
	if err != nil {
		return fmt.Errorf("failed to encode old value: %w", err)
	}

	newValue, err := json.Marshal(event.NewValue)
	if err != nil {
		return fmt.Errorf("failed to encode new value: %w", err)
	}

	results, err := json.Marshal(event.ActionResults)
	if err != nil {
		return fmt.Errorf("failed to encode action results: %w", err)
	}

	query := `
		INSERT INTO trigger_events (
			id, trigger_id, tenant_id, entity_type, entity_id,
			old_value, new_value, scheduled_for, fired_at,
			action_results, status, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.TriggerID,
		event.TenantID,
		event.Entity.Type,
		event.Entity.ID,
		oldValue,
		newValue,
		nullTime(event.ScheduledFor),
		event.FiredAt,
		results,
		string(event.Status),
		nullString(event.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trigger event %s: %w", event.ID, err)
	}

	return nil
}

func (r *TriggerEventRepository) TriggerEventsByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			id, trigger_id, tenant_id, entity_type, entity_id,
			old_value, new_value, scheduled_for, fired_at,
			action_results, status, error
		FROM trigger_events
		WHERE trigger_id = $1
		ORDER BY fired_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, triggerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger events: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	events := make([]*models.TriggerEvent, 0)

	for rows.Next() {
		var (
			event        models.TriggerEvent
			oldValue     []byte
			newValue     []byte
			scheduledFor sql.NullTime
			results      []byte
			status       string
			errDetail    sql.NullString
		)

		err := rows.Scan(
			&event.ID,
			&event.TriggerID,
			&event.TenantID,
			&event.Entity.Type,
			&event.Entity.ID,
			&oldValue,
			&newValue,
			&scheduledFor,
			&event.FiredAt,
			&results,
			&status,
			&errDetail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger event: %w", err)
		}

		event.Status = models.FiringStatus(status)
		event.Error = errDetail.String

		if scheduledFor.Valid {
			event.ScheduledFor = &scheduledFor.Time
		}

		err = unmarshalColumn(oldValue, &event.OldValue)
		if err != nil {
			return nil, fmt.Errorf("failed to decode old value: %w", err)
		}

		err = unmarshalColumn(newValue, &event.NewValue)
		if err != nil {
			return nil, fmt.Errorf("failed to decode new value: %w", err)
		}

		err = unmarshalColumn(results, &event.ActionResults)
		if err != nil {
			return nil, fmt.Errorf("failed to decode action results: %w", err)
		}

		events = append(events, &event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating trigger events: %w", err)
	}

	return events, nil
}

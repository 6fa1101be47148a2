package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
)

// TriggerRepository handles trigger-related database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTriggerRepository creates a new trigger repository.
func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

const triggerColumns = `
		id
	  , tenant_id
	  , name
	  , mode
	  , event_name
	  , schedule
	  , condition
	  , scope
	  , actions
	  , auto_advance
	  , enabled
	  , is_executing
	  , locked_at
	  , last_executed_at
	  , next_execution_at
	  , created_at
	  , updated_at
`

// SaveTrigger inserts or updates a trigger definition. Lock fields are
// excluded from the update: only the lease path may touch them.
func (r *TriggerRepository) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	schedule, condition, scope, actions, autoAdvance, err := marshalTriggerColumns(trigger)
	if err != nil {
		return persistence.NewTriggerError("Save", trigger.ID, err)
	}

	query := `
		INSERT INTO triggers (` + triggerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, NULL, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id
		  , name = EXCLUDED.name
		  , mode = EXCLUDED.mode
		  , event_name = EXCLUDED.event_name
		  , schedule = EXCLUDED.schedule
		  , condition = EXCLUDED.condition
		  , scope = EXCLUDED.scope
		  , actions = EXCLUDED.actions
		  , auto_advance = EXCLUDED.auto_advance
		  , enabled = EXCLUDED.enabled
		  , last_executed_at = EXCLUDED.last_executed_at
		  , next_execution_at = EXCLUDED.next_execution_at
		  , updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.TenantID,
		trigger.Name,
		string(trigger.Mode),
		nullString(trigger.EventName),
		schedule,
		condition,
		scope,
		actions,
		autoAdvance,
		trigger.Enabled,
		nullTime(trigger.LastExecutedAt),
		nullTime(trigger.NextExecutionAt),
		trigger.CreatedAt,
		trigger.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTriggerError("Save", trigger.ID, err)
	}

	return nil
}

// TriggerByID returns a trigger by its ID.
func (r *TriggerRepository) TriggerByID(ctx context.Context, id string) (*models.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers WHERE id = $1`

	trigger, err := scanTrigger(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewTriggerError("TriggerByID", id, persistence.ErrTriggerNotFound)
	}

	if err != nil {
		return nil, persistence.NewTriggerError("TriggerByID", id, err)
	}

	return trigger, nil
}

// TriggersByTenant returns every trigger of a tenant, newest first.
func (r *TriggerRepository) TriggersByTenant(ctx context.Context, tenantID string) ([]*models.Trigger, error) {
	query := `
		SELECT ` + triggerColumns + `
		FROM triggers
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id
	`

	return r.queryTriggers(ctx, "TriggersByTenant", query, tenantID)
}

// FindByEvent returns the enabled event-mode triggers of a tenant listening
// on the given event name.
func (r *TriggerRepository) FindByEvent(ctx context.Context, tenantID, eventName string) ([]*models.Trigger, error) {
	query := `
		SELECT ` + triggerColumns + `
		FROM triggers
		WHERE tenant_id = $1
		  AND event_name = $2
		  AND mode = 'event'
		  AND enabled = TRUE
		ORDER BY id
	`

	return r.queryTriggers(ctx, "FindByEvent", query, tenantID, eventName)
}

// FindDue returns enabled schedule-mode triggers due at the given time that
// are not currently executing.
func (r *TriggerRepository) FindDue(ctx context.Context, now time.Time) ([]*models.Trigger, error) {
	query := `
		SELECT ` + triggerColumns + `
		FROM triggers
		WHERE mode = 'schedule'
		  AND enabled = TRUE
		  AND is_executing = FALSE
		  AND next_execution_at IS NOT NULL
		  AND next_execution_at <= $1
		ORDER BY next_execution_at
	`

	return r.queryTriggers(ctx, "FindDue", query, now)
}

// UpdateExecution persists the post-firing bookkeeping fields.
func (r *TriggerRepository) UpdateExecution(ctx context.Context, trigger *models.Trigger) error {
	query := `
		UPDATE triggers
		SET last_executed_at = $2
		  , next_execution_at = $3
		  , enabled = $4
		  , updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		trigger.ID,
		nullTime(trigger.LastExecutedAt),
		nullTime(trigger.NextExecutionAt),
		trigger.Enabled,
	)
	if err != nil {
		return persistence.NewTriggerError("UpdateExecution", trigger.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewTriggerError("UpdateExecution", trigger.ID, err)
	}

	if affected == 0 {
		return persistence.NewTriggerError("UpdateExecution", trigger.ID, persistence.ErrTriggerNotFound)
	}

	return nil
}

func (r *TriggerRepository) queryTriggers(ctx context.Context, op, query string, args ...any) ([]*models.Trigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewTriggerError(op, "", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	triggers := make([]*models.Trigger, 0)

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, persistence.NewTriggerError(op, "", err)
		}

		triggers = append(triggers, trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewTriggerError(op, "", err)
	}

	return triggers, nil
}

// TriggerLeaseStore implements lease.Store as a conditional update on the
// trigger row's is_executing/locked_at pair.
type TriggerLeaseStore struct {
	db *sql.DB
}

// Acquire flips is_executing in a single atomic statement; the staleness
// window lets a new worker steal the lease of a crashed one.
func (s *TriggerLeaseStore) Acquire(ctx context.Context, key string, staleness time.Duration) (bool, error) {
	query := `
		UPDATE triggers
		SET is_executing = TRUE
		  , locked_at = NOW()
		WHERE id = $1
		  AND (is_executing = FALSE OR locked_at IS NULL OR locked_at < NOW() - $2::interval)
	`

	result, err := s.db.ExecContext(ctx, query, key, fmt.Sprintf("%d milliseconds", staleness.Milliseconds()))
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease for trigger %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease for trigger %s: %w", key, err)
	}

	return affected == 1, nil
}

// Release clears the lock pair unconditionally for the key.
func (s *TriggerLeaseStore) Release(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE triggers SET is_executing = FALSE, locked_at = NULL WHERE id = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to release lease for trigger %s: %w", key, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (*models.Trigger, error) {
	var (
		trigger     models.Trigger
		mode        string
		eventName   sql.NullString
		schedule    []byte
		condition   []byte
		scope       []byte
		actions     []byte
		autoAdvance []byte
		lockedAt    sql.NullTime
		lastExec    sql.NullTime
		nextExec    sql.NullTime
	)

	err := row.Scan(
		&trigger.ID,
		&trigger.TenantID,
		&trigger.Name,
		&mode,
		&eventName,
		&schedule,
		&condition,
		&scope,
		&actions,
		&autoAdvance,
		&trigger.Enabled,
		&trigger.IsExecuting,
		&lockedAt,
		&lastExec,
		&nextExec,
		&trigger.CreatedAt,
		&trigger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	trigger.Mode = models.TriggerMode(mode)
	trigger.EventName = eventName.String

	if lockedAt.Valid {
		trigger.LockedAt = &lockedAt.Time
	}

	if lastExec.Valid {
		trigger.LastExecutedAt = &lastExec.Time
	}

	if nextExec.Valid {
		trigger.NextExecutionAt = &nextExec.Time
	}

	err = unmarshalColumn(schedule, &trigger.Schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to decode schedule: %w", err)
	}

	err = unmarshalColumn(condition, &trigger.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to decode condition: %w", err)
	}

	err = unmarshalColumn(scope, &trigger.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to decode scope: %w", err)
	}

	err = unmarshalColumn(actions, &trigger.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}

	err = unmarshalColumn(autoAdvance, &trigger.AutoAdvance)
	if err != nil {
		return nil, fmt.Errorf("failed to decode auto advance: %w", err)
	}

	return &trigger, nil
}

func marshalTriggerColumns(trigger *models.Trigger) (schedule, condition, scope, actions, autoAdvance []byte, err error) {
	if trigger.Schedule != nil {
		schedule, err = json.Marshal(trigger.Schedule)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("failed to encode schedule: %w", err)
		}
	}

	if trigger.Condition != nil {
		condition, err = json.Marshal(trigger.Condition)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("failed to encode condition: %w", err)
		}
	}

	scope, err = json.Marshal(trigger.Scope)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to encode scope: %w", err)
	}

	if trigger.Actions == nil {
		actions = []byte("[]")
	} else {
		actions, err = json.Marshal(trigger.Actions)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("failed to encode actions: %w", err)
		}
	}

	autoAdvance, err = json.Marshal(trigger.AutoAdvance)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to encode auto advance: %w", err)
	}

	return schedule, condition, scope, actions, autoAdvance, nil
}

func unmarshalColumn(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

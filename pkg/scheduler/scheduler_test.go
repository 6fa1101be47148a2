package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiq/automata/pkg/executor"
	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
	"github.com/practiq/automata/pkg/persistence/memory"
)

type recordingNotifier struct {
	calls int
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, _ models.NotifyParams) error {
	n.calls++

	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *memory.Persistence, *recordingNotifier) {
	t.Helper()

	store := memory.NewPersistence()
	logger := slog.Default()
	notifier := &recordingNotifier{}

	exec := executor.NewExecutor(logger, store, store, store, nil, nil,
		executor.Collaborators{Notifier: notifier}, executor.Config{}, nil, "scheduler-test")

	return NewScheduler(logger, store, exec, time.Minute), store, notifier
}

func dailyTrigger(id string, next time.Time) *models.Trigger {
	return &models.Trigger{
		ID:       id,
		TenantID: "tenant-1",
		Name:     "Morning reminder",
		Mode:     models.TriggerModeSchedule,
		Schedule: &models.ScheduleSpec{
			Kind:      models.ScheduleKindRecurrence,
			Frequency: models.RecurrenceDaily,
			Hour:      9,
		},
		Actions: []models.Action{{
			Type:   models.ActionTypeNotify,
			Notify: &models.NotifyParams{Channel: "email", Template: "reminder"},
		}},
		Enabled:         true,
		NextExecutionAt: &next,
	}
}

func TestTickFiresDueTrigger(t *testing.T) {
	s, store, notifier := newTestScheduler(t)

	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return now }

	due := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, store.SaveTrigger(ctx, dailyTrigger("trg-due", due)))

	s.Tick(ctx)

	assert.Equal(t, 1, notifier.calls)

	rows, err := store.TriggerEventsByTrigger(ctx, "trg-due", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ScheduledFor)
	assert.Equal(t, due, rows[0].ScheduledFor.UTC())

	// The next occurrence was recomputed past the current tick.
	stored, err := store.TriggerByID(ctx, "trg-due")
	require.NoError(t, err)
	require.NotNil(t, stored.NextExecutionAt)
	assert.True(t, stored.NextExecutionAt.After(now))
}

func TestTickIgnoresUndueTriggers(t *testing.T) {
	s, store, notifier := newTestScheduler(t)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	future := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, store.SaveTrigger(ctx, dailyTrigger("trg-future", future)))

	disabled := dailyTrigger("trg-disabled", now.Add(-time.Hour))
	disabled.Enabled = false
	require.NoError(t, store.SaveTrigger(ctx, disabled))

	s.Tick(ctx)

	assert.Zero(t, notifier.calls)
}

func TestTickDisablesExhaustedOneShot(t *testing.T) {
	s, store, notifier := newTestScheduler(t)

	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return now }

	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	trigger := dailyTrigger("trg-once", at)
	trigger.Schedule = &models.ScheduleSpec{Kind: models.ScheduleKindOneShot, At: &at}

	ctx := context.Background()
	require.NoError(t, store.SaveTrigger(ctx, trigger))

	s.Tick(ctx)
	assert.Equal(t, 1, notifier.calls)

	stored, err := store.TriggerByID(ctx, "trg-once")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.Nil(t, stored.NextExecutionAt)

	// A later tick finds nothing to fire.
	s.Tick(ctx)
	assert.Equal(t, 1, notifier.calls)
}

func TestTickSkipsLeasedTrigger(t *testing.T) {
	s, store, notifier := newTestScheduler(t)

	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return now }

	due := now.Add(-time.Minute)
	ctx := context.Background()
	require.NoError(t, store.SaveTrigger(ctx, dailyTrigger("trg-leased", due)))

	acquired, err := store.Acquire(ctx, "trg-leased", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	s.Tick(ctx)

	assert.Zero(t, notifier.calls)

	rows, err := store.TriggerEventsByTrigger(ctx, "trg-leased", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

type failingTriggerRepository struct {
	persistence.TriggerRepository
}

func (f *failingTriggerRepository) FindDue(_ context.Context, _ time.Time) ([]*models.Trigger, error) {
	return nil, errors.New("connection refused")
}

func TestTickSurvivesRepositoryFailure(t *testing.T) {
	store := memory.NewPersistence()
	failing := &failingTriggerRepository{TriggerRepository: store}
	logger := slog.Default()
	exec := executor.NewExecutor(logger, store, failing, store, nil, nil,
		executor.Collaborators{}, executor.Config{}, nil, "scheduler-test")
	s := NewScheduler(logger, failing, exec, time.Minute)

	// The tick logs and returns; nothing panics and the loop survives.
	s.Tick(context.Background())
}

func TestStartAndStop(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx)) // idempotent
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx)) // idempotent
}

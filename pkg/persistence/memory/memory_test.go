package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
)

func storedTrigger(id, tenantID string, mode models.TriggerMode) *models.Trigger {
	trigger := &models.Trigger{
		ID:       id,
		TenantID: tenantID,
		Name:     "Trigger " + id,
		Mode:     mode,
		Enabled:  true,
	}

	if mode == models.TriggerModeEvent {
		trigger.EventName = "task.completed"
	}

	return trigger
}

func TestTriggerByID(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	require.NoError(t, p.SaveTrigger(ctx, storedTrigger("trg-1", "tenant-1", models.TriggerModeEvent)))

	found, err := p.TriggerByID(ctx, "trg-1")
	require.NoError(t, err)
	assert.Equal(t, "trg-1", found.ID)

	// Reads return copies, not aliases into the store.
	found.Name = "mutated"

	again, err := p.TriggerByID(ctx, "trg-1")
	require.NoError(t, err)
	assert.Equal(t, "Trigger trg-1", again.Name)

	_, err = p.TriggerByID(ctx, "missing")
	assert.True(t, persistence.IsNotFound(err))
}

func TestTriggersByTenant(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	require.NoError(t, p.SaveTrigger(ctx, storedTrigger("trg-b", "tenant-1", models.TriggerModeEvent)))
	require.NoError(t, p.SaveTrigger(ctx, storedTrigger("trg-a", "tenant-1", models.TriggerModeSchedule)))
	require.NoError(t, p.SaveTrigger(ctx, storedTrigger("trg-c", "tenant-2", models.TriggerModeEvent)))

	triggers, err := p.TriggersByTenant(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, "trg-a", triggers[0].ID)
	assert.Equal(t, "trg-b", triggers[1].ID)
}

func TestFindByEvent(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	match := storedTrigger("trg-match", "tenant-1", models.TriggerModeEvent)
	require.NoError(t, p.SaveTrigger(ctx, match))

	otherEvent := storedTrigger("trg-other-event", "tenant-1", models.TriggerModeEvent)
	otherEvent.EventName = "task.started"
	require.NoError(t, p.SaveTrigger(ctx, otherEvent))

	otherTenant := storedTrigger("trg-other-tenant", "tenant-2", models.TriggerModeEvent)
	require.NoError(t, p.SaveTrigger(ctx, otherTenant))

	disabled := storedTrigger("trg-disabled", "tenant-1", models.TriggerModeEvent)
	disabled.Enabled = false
	require.NoError(t, p.SaveTrigger(ctx, disabled))

	scheduled := storedTrigger("trg-scheduled", "tenant-1", models.TriggerModeSchedule)
	require.NoError(t, p.SaveTrigger(ctx, scheduled))

	found, err := p.FindByEvent(ctx, "tenant-1", "task.completed")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "trg-match", found[0].ID)
}

func TestFindDue(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	due := storedTrigger("trg-due", "tenant-1", models.TriggerModeSchedule)
	due.NextExecutionAt = &past
	require.NoError(t, p.SaveTrigger(ctx, due))

	exact := storedTrigger("trg-exact", "tenant-1", models.TriggerModeSchedule)
	exact.NextExecutionAt = &now
	require.NoError(t, p.SaveTrigger(ctx, exact))

	notYet := storedTrigger("trg-future", "tenant-1", models.TriggerModeSchedule)
	notYet.NextExecutionAt = &future
	require.NoError(t, p.SaveTrigger(ctx, notYet))

	unscheduled := storedTrigger("trg-unscheduled", "tenant-1", models.TriggerModeSchedule)
	require.NoError(t, p.SaveTrigger(ctx, unscheduled))

	executing := storedTrigger("trg-executing", "tenant-1", models.TriggerModeSchedule)
	executing.NextExecutionAt = &past
	executing.IsExecuting = true
	lockedAt := now.Add(-time.Second)
	executing.LockedAt = &lockedAt
	require.NoError(t, p.SaveTrigger(ctx, executing))

	found, err := p.FindDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "trg-due", found[0].ID)
	assert.Equal(t, "trg-exact", found[1].ID)
}

func TestUpdateExecution(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	trigger := storedTrigger("trg-1", "tenant-1", models.TriggerModeSchedule)
	require.NoError(t, p.SaveTrigger(ctx, trigger))

	last := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	next := last.Add(24 * time.Hour)
	trigger.LastExecutedAt = &last
	trigger.NextExecutionAt = &next
	trigger.Enabled = false

	require.NoError(t, p.UpdateExecution(ctx, trigger))

	stored, err := p.TriggerByID(ctx, "trg-1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastExecutedAt)
	assert.Equal(t, last, stored.LastExecutedAt.UTC())
	require.NotNil(t, stored.NextExecutionAt)
	assert.Equal(t, next, stored.NextExecutionAt.UTC())
	assert.False(t, stored.Enabled)

	missing := storedTrigger("trg-missing", "tenant-1", models.TriggerModeSchedule)
	err = p.UpdateExecution(ctx, missing)
	assert.True(t, persistence.IsNotFound(err))
}

func TestAcquireRelease(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	require.NoError(t, p.SaveTrigger(ctx, storedTrigger("trg-1", "tenant-1", models.TriggerModeEvent)))

	acquired, err := p.Acquire(ctx, "trg-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = p.Acquire(ctx, "trg-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, p.Release(ctx, "trg-1"))

	acquired, err = p.Acquire(ctx, "trg-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	_, err = p.Acquire(ctx, "missing", time.Minute)
	assert.True(t, persistence.IsNotFound(err))
}

func TestAcquireStealsStaleLock(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	stale := storedTrigger("trg-1", "tenant-1", models.TriggerModeEvent)
	stale.IsExecuting = true
	lockedAt := time.Now().UTC().Add(-10 * time.Minute)
	stale.LockedAt = &lockedAt
	require.NoError(t, p.SaveTrigger(ctx, stale))

	acquired, err := p.Acquire(ctx, "trg-1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestTriggerEventsNewestFirst(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := range 5 {
		require.NoError(t, p.SaveTriggerEvent(ctx, &models.TriggerEvent{
			ID:        fmt.Sprintf("evt-%d", i),
			TriggerID: "trg-1",
			TenantID:  "tenant-1",
			FiredAt:   base.Add(time.Duration(i) * time.Minute),
			Status:    models.FiringStatusSuccess,
		}))
	}

	require.NoError(t, p.SaveTriggerEvent(ctx, &models.TriggerEvent{
		ID:        "evt-other",
		TriggerID: "trg-2",
		TenantID:  "tenant-1",
		FiredAt:   base,
		Status:    models.FiringStatusSuccess,
	}))

	events, err := p.TriggerEventsByTrigger(ctx, "trg-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "evt-4", events[0].ID)
	assert.Equal(t, "evt-3", events[1].ID)
	assert.Equal(t, "evt-2", events[2].ID)

	all, err := p.TriggerEventsByTrigger(ctx, "trg-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestProgressionHierarchyOrdering(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	require.NoError(t, p.SaveAssignment(ctx, &models.WorkflowAssignment{ID: "asg-1", TenantID: "tenant-1"}))
	require.NoError(t, p.SaveStage(ctx, &models.Stage{ID: "stage-b", AssignmentID: "asg-1", Position: 1}))
	require.NoError(t, p.SaveStage(ctx, &models.Stage{ID: "stage-a", AssignmentID: "asg-1", Position: 0}))
	require.NoError(t, p.SaveStep(ctx, &models.Step{ID: "step-2", StageID: "stage-a", Position: 1}))
	require.NoError(t, p.SaveStep(ctx, &models.Step{ID: "step-1", StageID: "stage-a", Position: 0}))

	stages, err := p.StagesByAssignment(ctx, "asg-1")
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "stage-a", stages[0].ID)
	assert.Equal(t, "stage-b", stages[1].ID)

	steps, err := p.StepsByStage(ctx, "stage-a")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "step-1", steps[0].ID)

	_, err = p.StageByID(ctx, "missing")
	assert.True(t, persistence.IsNotFound(err))
}

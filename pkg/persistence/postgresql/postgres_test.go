package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
	"github.com/practiq/automata/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last.
	for _, table := range []string{"task_dependencies", "tasks", "steps", "stages", "workflow_assignments", "trigger_events", "triggers", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("automata_test"),
			postgres.WithUsername("automata"),
			postgres.WithPassword("automata"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func testTrigger(mode models.TriggerMode) *models.Trigger {
	trigger := &models.Trigger{
		ID:       uuid.New().String(),
		TenantID: "tenant-1",
		Name:     "Integration trigger",
		Mode:     mode,
		Actions: []models.Action{{
			Type:   models.ActionTypeNotify,
			Notify: &models.NotifyParams{Channel: "email", Template: "done"},
		}},
		Enabled: true,
	}

	switch mode {
	case models.TriggerModeEvent:
		trigger.EventName = "task.completed"
	case models.TriggerModeSchedule:
		trigger.Schedule = &models.ScheduleSpec{
			Kind:      models.ScheduleKindRecurrence,
			Frequency: models.RecurrenceDaily,
			Hour:      9,
		}
	}

	return trigger
}

func TestTriggerRoundTrip(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.TriggerRepository()

	trigger := testTrigger(models.TriggerModeEvent)
	trigger.Condition = &models.ConditionNode{
		Kind:     models.ConditionKindLeaf,
		Field:    "priority",
		Operator: models.OpEqual,
		Value:    "urgent",
	}
	trigger.Scope = models.TriggerScope{WorkflowID: "wf-1"}

	require.NoError(t, repo.SaveTrigger(ctx, trigger))

	found, err := repo.TriggerByID(ctx, trigger.ID)
	require.NoError(t, err)
	assert.Equal(t, trigger.Name, found.Name)
	assert.Equal(t, models.TriggerModeEvent, found.Mode)
	assert.Equal(t, "task.completed", found.EventName)
	require.NotNil(t, found.Condition)
	assert.Equal(t, models.OpEqual, found.Condition.Operator)
	assert.Equal(t, "wf-1", found.Scope.WorkflowID)
	require.Len(t, found.Actions, 1)
	require.NotNil(t, found.Actions[0].Notify)
	assert.Equal(t, "email", found.Actions[0].Notify.Channel)

	_, err = repo.TriggerByID(ctx, uuid.New().String())
	assert.True(t, persistence.IsNotFound(err))
}

func TestFindByEventFiltersTenantAndName(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.TriggerRepository()

	match := testTrigger(models.TriggerModeEvent)
	require.NoError(t, repo.SaveTrigger(ctx, match))

	other := testTrigger(models.TriggerModeEvent)
	other.EventName = "task.started"
	require.NoError(t, repo.SaveTrigger(ctx, other))

	disabled := testTrigger(models.TriggerModeEvent)
	disabled.Enabled = false
	require.NoError(t, repo.SaveTrigger(ctx, disabled))

	found, err := repo.FindByEvent(ctx, "tenant-1", "task.completed")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, match.ID, found[0].ID)
}

func TestFindDueAndUpdateExecution(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.TriggerRepository()

	now := time.Now().UTC().Truncate(time.Microsecond)
	past := now.Add(-time.Minute)

	due := testTrigger(models.TriggerModeSchedule)
	due.NextExecutionAt = &past
	require.NoError(t, repo.SaveTrigger(ctx, due))

	future := testTrigger(models.TriggerModeSchedule)
	nextWeek := now.Add(7 * 24 * time.Hour)
	future.NextExecutionAt = &nextWeek
	require.NoError(t, repo.SaveTrigger(ctx, future))

	found, err := repo.FindDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID, found[0].ID)

	next := now.Add(24 * time.Hour)
	due.LastExecutedAt = &now
	due.NextExecutionAt = &next
	require.NoError(t, repo.UpdateExecution(ctx, due))

	found, err = repo.FindDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLeaseStoreMutualExclusion(t *testing.T) {
	p, ctx := setupTestDB(t)

	trigger := testTrigger(models.TriggerModeEvent)
	require.NoError(t, p.TriggerRepository().SaveTrigger(ctx, trigger))

	leases := p.LeaseStore()

	acquired, err := leases.Acquire(ctx, trigger.ID, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = leases.Acquire(ctx, trigger.ID, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, leases.Release(ctx, trigger.ID))

	acquired, err = leases.Acquire(ctx, trigger.ID, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestTriggerEventAuditTrail(t *testing.T) {
	p, ctx := setupTestDB(t)

	trigger := testTrigger(models.TriggerModeEvent)
	require.NoError(t, p.TriggerRepository().SaveTrigger(ctx, trigger))

	audit := p.TriggerEventRepository()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := range 3 {
		require.NoError(t, audit.SaveTriggerEvent(ctx, &models.TriggerEvent{
			ID:        uuid.New().String(),
			TriggerID: trigger.ID,
			TenantID:  trigger.TenantID,
			Entity:    models.EntityRef{Type: "task", ID: "t1"},
			FiredAt:   base.Add(time.Duration(i) * time.Second),
			ActionResults: []models.ActionResult{{
				Index:      0,
				ActionType: models.ActionTypeNotify,
				Status:     models.ActionStatusSucceeded,
			}},
			Status: models.FiringStatusSuccess,
		}))
	}

	events, err := audit.TriggerEventsByTrigger(ctx, trigger.ID, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.True(t, events[0].FiredAt.After(events[1].FiredAt))
	require.Len(t, events[0].ActionResults, 1)
	assert.Equal(t, models.ActionStatusSucceeded, events[0].ActionResults[0].Status)
}

func TestProgressionRoundTrip(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.ProgressionRepository()

	assignment := &models.WorkflowAssignment{
		ID:         uuid.New().String(),
		TenantID:   "tenant-1",
		WorkflowID: "wf-1",
		SubjectID:  "client-1",
		Status:     models.StatusPending,
	}
	require.NoError(t, repo.SaveAssignment(ctx, assignment))

	stage := &models.Stage{
		ID:           uuid.New().String(),
		AssignmentID: assignment.ID,
		Name:         "Onboarding",
		Status:       models.StatusPending,
		AutoProgress: true,
	}
	require.NoError(t, repo.SaveStage(ctx, stage))

	step := &models.Step{
		ID:      uuid.New().String(),
		StageID: stage.ID,
		Name:    "Documents",
		Status:  models.StatusPending,
	}
	require.NoError(t, repo.SaveStep(ctx, step))

	task := &models.Task{
		ID:       uuid.New().String(),
		StepID:   step.ID,
		Name:     "Upload passport",
		Status:   models.StatusPending,
		Required: true,
		Fields:   map[string]any{"priority": "urgent"},
	}
	require.NoError(t, repo.SaveTask(ctx, task))

	upstream := &models.Task{
		ID:       uuid.New().String(),
		StepID:   step.ID,
		Name:     "Verify identity",
		Status:   models.StatusPending,
		Required: true,
	}
	require.NoError(t, repo.SaveTask(ctx, upstream))

	dep := &models.TaskDependency{
		ID:              uuid.New().String(),
		AssignmentID:    assignment.ID,
		TaskID:          task.ID,
		DependsOnTaskID: upstream.ID,
		Type:            models.DependencyFinishToStart,
		Blocking:        true,
	}
	require.NoError(t, repo.SaveDependency(ctx, dep))

	stages, err := repo.StagesByAssignment(ctx, assignment.ID)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.True(t, stages[0].AutoProgress)

	tasks, err := repo.TasksByStep(ctx, step.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	for _, stored := range tasks {
		if stored.ID == task.ID {
			assert.Equal(t, "urgent", stored.Fields["priority"])
		}
	}

	deps, err := repo.DependenciesByAssignment(ctx, assignment.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, models.DependencyFinishToStart, deps[0].Type)

	task.Status = models.StatusCompleted
	completedAt := time.Now().UTC().Truncate(time.Microsecond)
	task.CompletedAt = &completedAt
	require.NoError(t, repo.SaveTask(ctx, task))

	updated, err := repo.TaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)
}

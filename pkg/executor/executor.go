// Package executor runs the ordered action list of a fired trigger under an
// execution lease and records the firing in the audit trail.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/practiq/automata/pkg/eventbus"
	"github.com/practiq/automata/pkg/events"
	"github.com/practiq/automata/pkg/lease"
	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/otelhelper"
	"github.com/practiq/automata/pkg/persistence"
	"github.com/practiq/automata/pkg/progression"
	"github.com/practiq/automata/pkg/protocol"
)

// DefaultActionTimeout bounds each collaborator call. A timeout is recorded
// as that action's failure and never blocks the lease release.
const DefaultActionTimeout = 30 * time.Second

// Collaborators are the external services actions call into. A nil
// collaborator fails the corresponding action kind instead of panicking.
type Collaborators struct {
	TaskCreator  protocol.TaskCreator
	Notifier     protocol.Notifier
	AgentInvoker protocol.AgentInvoker
	FieldWriter  protocol.FieldWriter
}

// Config tunes the executor.
type Config struct {
	ActionTimeout  time.Duration
	LeaseStaleness time.Duration
}

func (c Config) withDefaults() Config {
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = DefaultActionTimeout
	}

	if c.LeaseStaleness <= 0 {
		c.LeaseStaleness = lease.DefaultStaleness
	}

	return c
}

// FiringContext carries everything one firing needs besides the trigger
// itself.
type FiringContext struct {
	Trigger *models.Trigger
	Entity  models.EntityRef

	// Field delta for event-mode firings of field changes.
	OldValue any
	NewValue any

	// ScheduledFor is set for schedule-mode firings.
	ScheduledFor *time.Time

	// AssignmentID scopes progression side effects when known.
	AssignmentID string
}

// Executor fires triggers. One instance is shared by the dispatcher and the
// scheduler; the lease keeps concurrent workers from firing the same
// trigger twice.
type Executor struct {
	logger      *slog.Logger
	leases      lease.Store
	triggers    persistence.TriggerRepository
	audit       persistence.TriggerEventRepository
	progression *progression.Engine
	publisher   eventbus.EventPublisher
	collab      Collaborators
	config      Config
	tracer      trace.Tracer
	workerID    string
	now         func() time.Time
}

func NewExecutor(
	logger *slog.Logger,
	leases lease.Store,
	triggers persistence.TriggerRepository,
	audit persistence.TriggerEventRepository,
	progressionEngine *progression.Engine,
	publisher eventbus.EventPublisher,
	collab Collaborators,
	config Config,
	tracer trace.Tracer,
	workerID string,
) *Executor {
	return &Executor{
		logger:      logger.With("module", "executor"),
		leases:      leases,
		triggers:    triggers,
		audit:       audit,
		progression: progressionEngine,
		publisher:   publisher,
		collab:      collab,
		config:      config.withDefaults(),
		tracer:      tracer,
		workerID:    workerID,
		now:         time.Now,
	}
}

// Execute fires the trigger once. On lease contention it returns (nil, nil):
// another worker owns this firing and no duplicate TriggerEvent may be
// written. Actions run strictly in list order; a failing action is recorded
// and does not stop its siblings.
func (e *Executor) Execute(ctx context.Context, firing FiringContext) (*models.TriggerEvent, error) {
	trigger := firing.Trigger

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.execute",
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.TenantIDKey, trigger.TenantID),
	)
	defer span.End()

	acquired, err := e.leases.Acquire(ctx, trigger.ID, e.config.LeaseStaleness)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire execution lease for trigger %s: %w", trigger.ID, err)
	}

	if !acquired {
		e.logger.DebugContext(ctx, "Execution lease held elsewhere, skipping firing", "trigger_id", trigger.ID)

		return nil, nil
	}

	defer func() {
		// The firing's context may already be cancelled when the defer
		// runs; the lease still has to go back, or the trigger stays
		// locked until staleness recovery.
		releaseCtx := context.WithoutCancel(ctx)

		releaseErr := e.leases.Release(releaseCtx, trigger.ID)
		if releaseErr != nil {
			e.logger.ErrorContext(releaseCtx, "Failed to release execution lease", "trigger_id", trigger.ID, "error", releaseErr)
		}
	}()

	results := e.runActions(ctx, firing)

	event := &models.TriggerEvent{
		ID:            uuid.New().String(),
		TriggerID:     trigger.ID,
		TenantID:      trigger.TenantID,
		Entity:        firing.Entity,
		OldValue:      firing.OldValue,
		NewValue:      firing.NewValue,
		ScheduledFor:  firing.ScheduledFor,
		FiredAt:       e.now().UTC(),
		ActionResults: results,
		Status:        models.AggregateStatus(results),
	}

	if event.Status == models.FiringStatusFailed {
		event.Error = firstError(results)
	}

	err = e.audit.SaveTriggerEvent(ctx, event)
	if err != nil {
		err = fmt.Errorf("failed to persist trigger event for %s: %w", trigger.ID, err)
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.announceFiring(ctx, event)

	err = e.updateExecutionBookkeeping(ctx, trigger)
	if err != nil {
		return event, err
	}

	return event, nil
}

// runActions executes the trigger's action list plus the auto-advance
// shortcut, which behaves as a built-in action appended to the list.
func (e *Executor) runActions(ctx context.Context, firing FiringContext) []models.ActionResult {
	trigger := firing.Trigger
	results := make([]models.ActionResult, 0, len(trigger.Actions)+1)

	for index, action := range trigger.Actions {
		results = append(results, e.runAction(ctx, index, action, firing))
	}

	if trigger.AutoAdvance.Enabled {
		results = append(results, e.runAutoAdvance(ctx, len(trigger.Actions), trigger.AutoAdvance))
	}

	return results
}

func (e *Executor) runAction(ctx context.Context, index int, action models.Action, firing FiringContext) models.ActionResult {
	result := models.ActionResult{
		Index:      index,
		ActionType: action.Type,
		Status:     models.ActionStatusSucceeded,
	}

	if action.Type == models.ActionTypeUnknown {
		result.Status = models.ActionStatusSkipped
		e.logger.WarnContext(ctx, "Skipping action of unknown type",
			"trigger_id", firing.Trigger.ID,
			"action_index", index)

		return result
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.config.ActionTimeout)
	defer cancel()

	started := e.now()
	err := e.applyAction(actionCtx, action, firing)
	result.Duration = e.now().Sub(started)

	if err != nil {
		result.Status = models.ActionStatusFailed
		result.Error = err.Error()
		e.logger.WarnContext(ctx, "Action failed",
			"trigger_id", firing.Trigger.ID,
			"action_index", index,
			"action_type", action.Type,
			"error", err)
	}

	return result
}

func (e *Executor) applyAction(ctx context.Context, action models.Action, firing FiringContext) error {
	tenantID := firing.Trigger.TenantID

	switch action.Type {
	case models.ActionTypeAdvanceStage:
		if action.AdvanceStage == nil {
			return errors.New("advance_stage action without parameters")
		}

		return e.progression.AdvanceToStage(ctx, action.AdvanceStage.StageID)
	case models.ActionTypeAdvanceStep:
		if action.AdvanceStep == nil {
			return errors.New("advance_step action without parameters")
		}

		return e.progression.AdvanceToStep(ctx, action.AdvanceStep.StepID)
	case models.ActionTypeCreateTask:
		if e.collab.TaskCreator == nil {
			return errors.New("no task creation service configured")
		}

		if action.CreateTask == nil {
			return errors.New("create_task action without parameters")
		}

		_, err := e.collab.TaskCreator.CreateTask(ctx, tenantID, *action.CreateTask)

		return err
	case models.ActionTypeNotify:
		if e.collab.Notifier == nil {
			return errors.New("no notification service configured")
		}

		if action.Notify == nil {
			return errors.New("notify action without parameters")
		}

		return e.collab.Notifier.Notify(ctx, tenantID, *action.Notify)
	case models.ActionTypeInvokeAgent:
		if e.collab.AgentInvoker == nil {
			return errors.New("no agent invocation service configured")
		}

		if action.InvokeAgent == nil {
			return errors.New("invoke_agent action without parameters")
		}

		return e.collab.AgentInvoker.InvokeAgent(ctx, tenantID, *action.InvokeAgent)
	case models.ActionTypeSetField:
		if e.collab.FieldWriter == nil {
			return errors.New("no field writer configured")
		}

		if action.SetField == nil {
			return errors.New("set_field action without parameters")
		}

		return e.collab.FieldWriter.SetField(ctx, tenantID, firing.Entity, action.SetField.Field, action.SetField.Value)
	default:
		return fmt.Errorf("unhandled action type %s", action.Type)
	}
}

// runAutoAdvance executes the trigger's auto-advance shortcut. A forced
// advance bypasses child-completion rollup; the audit row records it like
// any other action so the forced move stays visible.
func (e *Executor) runAutoAdvance(ctx context.Context, index int, advance models.AutoAdvance) models.ActionResult {
	result := models.ActionResult{
		Index:  index,
		Status: models.ActionStatusSucceeded,
	}

	advanceCtx, cancel := context.WithTimeout(ctx, e.config.ActionTimeout)
	defer cancel()

	started := e.now()

	var err error

	switch {
	case advance.StepID != "":
		result.ActionType = models.ActionTypeAdvanceStep
		err = e.progression.AdvanceToStep(advanceCtx, advance.StepID)
	case advance.StageID != "":
		result.ActionType = models.ActionTypeAdvanceStage
		err = e.progression.AdvanceToStage(advanceCtx, advance.StageID)
	default:
		result.ActionType = models.ActionTypeUnknown
		err = errors.New("auto-advance enabled without a target")
	}

	result.Duration = e.now().Sub(started)

	if err != nil {
		result.Status = models.ActionStatusFailed
		result.Error = err.Error()
	}

	return result
}

// updateExecutionBookkeeping advances last/next execution after a firing.
// For schedule-mode triggers the next occurrence is recomputed from the
// parsed spec; a one-shot with no further occurrence is disabled rather than
// rescheduled.
func (e *Executor) updateExecutionBookkeeping(ctx context.Context, trigger *models.Trigger) error {
	now := e.now().UTC()
	trigger.LastExecutedAt = &now

	if trigger.Mode == models.TriggerModeSchedule && trigger.Schedule != nil {
		next, ok := trigger.Schedule.Next(now)
		if ok {
			trigger.NextExecutionAt = &next
		} else {
			trigger.NextExecutionAt = nil
			trigger.Enabled = false
			e.logger.InfoContext(ctx, "One-shot trigger exhausted, disabling", "trigger_id", trigger.ID)
		}
	}

	err := e.triggers.UpdateExecution(ctx, trigger)
	if err != nil {
		return fmt.Errorf("failed to update execution bookkeeping for trigger %s: %w", trigger.ID, err)
	}

	return nil
}

func (e *Executor) announceFiring(ctx context.Context, event *models.TriggerEvent) {
	if e.publisher == nil {
		return
	}

	firing := events.TriggerFired{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Timestamp: e.now().UTC(),
			TenantID:  event.TenantID,
			WorkerID:  e.workerID,
		},
		TriggerID:      event.TriggerID,
		TriggerEventID: event.ID,
		Status:         string(event.Status),
	}

	err := e.publisher.Publish(ctx, event.TenantID, firing)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to announce firing", "trigger_id", event.TriggerID, "error", err)
	}
}

func firstError(results []models.ActionResult) string {
	for _, result := range results {
		if result.Status == models.ActionStatusFailed {
			return result.Error
		}
	}

	return ""
}

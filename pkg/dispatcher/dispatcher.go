// Package dispatcher matches entity-change events against the tenant's
// event-mode triggers and hands each match to the action executor.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/practiq/automata/pkg/condition"
	"github.com/practiq/automata/pkg/eventbus"
	"github.com/practiq/automata/pkg/events"
	"github.com/practiq/automata/pkg/executor"
	"github.com/practiq/automata/pkg/otelhelper"
	"github.com/practiq/automata/pkg/persistence"
)

// DefaultConcurrency bounds how many triggers one event may run at once.
// There is no ordering guarantee across triggers of the same event; actions
// within one firing stay strictly sequential inside the executor.
const DefaultConcurrency = 8

// Dispatcher consumes EntityChanged events from the bus. The publish on the
// commit side is the durable enqueue; once a message is acked here, every
// matching trigger has been offered to the executor exactly once.
type Dispatcher struct {
	logger      *slog.Logger
	triggers    persistence.TriggerRepository
	executor    *executor.Executor
	tracer      trace.Tracer
	concurrency int
}

func NewDispatcher(logger *slog.Logger, triggers persistence.TriggerRepository, exec *executor.Executor, tracer trace.Tracer) *Dispatcher {
	return &Dispatcher{
		logger:      logger.With("module", "dispatcher"),
		triggers:    triggers,
		executor:    exec,
		tracer:      tracer,
		concurrency: DefaultConcurrency,
	}
}

// Run subscribes the dispatcher to the bus and blocks until the context is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context, bus eventbus.EventBus) error {
	bus.Handle(events.EntityChangedClass, func(ctx context.Context, event any) error {
		changed, ok := event.(*events.EntityChanged)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		return d.Dispatch(ctx, changed)
	})

	err := bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to entity events: %w", err)
	}

	d.logger.InfoContext(ctx, "Dispatcher started")
	<-ctx.Done()

	return nil
}

// Dispatch looks up the tenant's triggers for the event name, evaluates each
// condition tree against the event context and executes every match.
// Trigger lookups failing is the one fatal path: the event must be
// redelivered. Everything past that point is recorded per trigger and never
// propagates back to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, event *events.EntityChanged) error {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.dispatch",
		attribute.String(otelhelper.EventNameKey, event.EventName),
		attribute.String(otelhelper.TenantIDKey, event.TenantID),
	)
	defer span.End()

	candidates, err := d.triggers.FindByEvent(ctx, event.TenantID, event.EventName)
	if err != nil {
		err = fmt.Errorf("failed to find triggers for event %s: %w", event.EventName, err)
		otelhelper.SetError(span, err)

		return err
	}

	if len(candidates) == 0 {
		return nil
	}

	evalCtx := condition.Context{
		Snapshot:     event.Snapshot,
		ChangedField: event.Field,
		OldValue:     event.OldValue,
		NewValue:     event.NewValue,
	}

	var waitGroup sync.WaitGroup

	semaphore := make(chan struct{}, d.concurrency)

	for _, trigger := range candidates {
		if !trigger.InScope(event.WorkflowID, event.StageID, event.StepID) {
			continue
		}

		if !condition.Evaluate(trigger.Condition, evalCtx) {
			d.logger.DebugContext(ctx, "Trigger condition did not match",
				"trigger_id", trigger.ID,
				"event_name", event.EventName)

			continue
		}

		waitGroup.Add(1)
		semaphore <- struct{}{}

		go func() {
			defer waitGroup.Done()
			defer func() { <-semaphore }()

			firing := executor.FiringContext{
				Trigger:      trigger,
				Entity:       entityRef(event),
				OldValue:     event.OldValue,
				NewValue:     event.NewValue,
				AssignmentID: event.AssignmentID,
			}

			_, err := d.executor.Execute(ctx, firing)
			if err != nil {
				d.logger.ErrorContext(ctx, "Trigger firing failed",
					"trigger_id", trigger.ID,
					"event_name", event.EventName,
					"error", err)
			}
		}()
	}

	waitGroup.Wait()

	return nil
}

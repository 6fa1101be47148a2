// Package scheduler polls for due schedule-mode triggers and hands them to
// the action executor. It is a centralized poller: one query per tick finds
// every due trigger regardless of its individual schedule form.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/practiq/automata/pkg/executor"
	"github.com/practiq/automata/pkg/persistence"
)

// DefaultPollInterval is the tick length of the due-trigger scan.
const DefaultPollInterval = 30 * time.Second

// Scheduler periodically scans schedule-mode triggers whose
// next_execution_at has passed. At-most-one execution per trigger is the
// executor's lease; a due trigger another worker picked up first shows up
// here as a skipped firing, not an error.
type Scheduler struct {
	logger   *slog.Logger
	triggers persistence.TriggerRepository
	executor *executor.Executor
	interval time.Duration

	ticker  *time.Ticker
	done    chan bool
	started bool
	mu      sync.RWMutex
	now     func() time.Time
}

func NewScheduler(logger *slog.Logger, triggers persistence.TriggerRepository, exec *executor.Executor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Scheduler{
		logger:   logger.With("module", "scheduler"),
		triggers: triggers,
		executor: exec,
		interval: interval,
		now:      time.Now,
	}
}

// Start begins the poll loop. It returns immediately; polling runs on a
// background goroutine until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Starting scheduler", "interval", s.interval)

	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan bool)
	s.started = true

	go s.poll(ctx)

	return nil
}

// Stop gracefully shuts down the poll loop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Stopping scheduler")

	if s.ticker != nil {
		s.ticker.Stop()
	}

	select {
	case s.done <- true:
	default:
	}

	s.started = false

	return nil
}

func (s *Scheduler) poll(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one due-trigger scan. Exported so tests and operational tooling
// can force a scan without waiting out the interval.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()

	due, err := s.triggers.FindDue(ctx, now)
	if err != nil {
		// Persistence failure is fatal for this tick only; the triggers
		// stay due and the next tick retries them.
		s.logger.ErrorContext(ctx, "Failed to find due triggers", "error", err)

		return
	}

	if len(due) == 0 {
		return
	}

	s.logger.InfoContext(ctx, "Processing due triggers", "count", len(due))

	for _, trigger := range due {
		scheduledFor := now
		if trigger.NextExecutionAt != nil {
			scheduledFor = *trigger.NextExecutionAt
		}

		event, err := s.executor.Execute(ctx, executor.FiringContext{
			Trigger:      trigger,
			Entity:       scheduleEntity(trigger),
			ScheduledFor: &scheduledFor,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Scheduled firing failed",
				"trigger_id", trigger.ID,
				"error", err)

			continue
		}

		if event == nil {
			// Lease contention: another worker owns this firing.
			continue
		}

		s.logger.InfoContext(ctx, "Scheduled trigger fired",
			"trigger_id", trigger.ID,
			"status", event.Status,
			"scheduled_for", scheduledFor)
	}
}

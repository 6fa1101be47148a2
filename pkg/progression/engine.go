// Package progression implements the task → step → stage → assignment
// completion hierarchy: per-node status transitions, cascading rollup of
// completion counts, and the events that let automation chain off
// progression.
package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/practiq/automata/pkg/dependency"
	"github.com/practiq/automata/pkg/eventbus"
	"github.com/practiq/automata/pkg/events"
	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
)

var (
	// ErrTaskBlocked is returned when a task cannot start because a
	// blocking dependency is unsatisfied. The task is left in blocked
	// status until a dependency change unblocks it.
	ErrTaskBlocked = errors.New("task is blocked by unsatisfied dependencies")

	// ErrInvalidTransition is returned for a transition the state machine
	// does not allow, e.g. completing a cancelled assignment.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Engine is the progression state machine. All hierarchy mutations go
// through it; the surrounding CRUD application never writes status or
// progress columns directly.
type Engine struct {
	logger    *slog.Logger
	repo      persistence.ProgressionRepository
	publisher eventbus.EventPublisher

	// Per-assignment resolvers, built lazily from the stored dependency
	// edges.
	resolverMu sync.Mutex
	resolvers  map[string]*dependency.Resolver

	// Per-assignment locks serialize rollups within this process. Across
	// processes the recount-from-rows semantics keep rollups convergent.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	now func() time.Time
}

func NewEngine(logger *slog.Logger, repo persistence.ProgressionRepository, publisher eventbus.EventPublisher) *Engine {
	return &Engine{
		logger:    logger.With("module", "progression"),
		repo:      repo,
		publisher: publisher,
		resolvers: make(map[string]*dependency.Resolver),
		locks:     make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// StartTask moves a pending task to in_progress if its dependencies are
// satisfied; otherwise the task is marked blocked and ErrTaskBlocked is
// returned. Starting also pulls the parent step and stage out of pending.
func (e *Engine) StartTask(ctx context.Context, taskID string) error {
	task, step, stage, assignment, err := e.loadLineage(ctx, taskID)
	if err != nil {
		return err
	}

	unlock := e.lockAssignment(assignment.ID)
	defer unlock()

	switch task.Status {
	case models.StatusPending, models.StatusBlocked:
	default:
		return fmt.Errorf("%w: cannot start task in status %s", ErrInvalidTransition, task.Status)
	}

	resolver, err := e.resolver(ctx, assignment.ID)
	if err != nil {
		return err
	}

	if !resolver.IsTaskEligible(task.ID) {
		if task.Status != models.StatusBlocked {
			task.Status = models.StatusBlocked
			if err := e.repo.SaveTask(ctx, task); err != nil {
				return err
			}

			resolver.SetTaskState(task)
			e.publishTaskEvent(ctx, events.TaskBlocked, task, step, stage, assignment)
		}

		return ErrTaskBlocked
	}

	now := e.now().UTC()
	task.Status = models.StatusInProgress
	task.StartedAt = &now

	err = e.repo.SaveTask(ctx, task)
	if err != nil {
		return err
	}

	e.onTaskStatusChanged(ctx, resolver, task)

	err = e.markLineageInProgress(ctx, step, stage, assignment)
	if err != nil {
		return err
	}

	e.publishTaskEvent(ctx, events.TaskStarted, task, step, stage, assignment)

	return e.rollup(ctx, step, stage, assignment)
}

// CompleteTask marks a task completed, recomputes dependent eligibility,
// publishes task.completed and rolls the completion up the hierarchy.
func (e *Engine) CompleteTask(ctx context.Context, taskID string) error {
	task, step, stage, assignment, err := e.loadLineage(ctx, taskID)
	if err != nil {
		return err
	}

	unlock := e.lockAssignment(assignment.ID)
	defer unlock()

	switch task.Status {
	case models.StatusPending, models.StatusInProgress:
	case models.StatusCompleted:
		// Duplicate completion converges: re-run the rollup and stop.
		return e.rollup(ctx, step, stage, assignment)
	default:
		return fmt.Errorf("%w: cannot complete task in status %s", ErrInvalidTransition, task.Status)
	}

	now := e.now().UTC()
	task.Status = models.StatusCompleted
	task.CompletedAt = &now

	if task.StartedAt == nil {
		task.StartedAt = &now
	}

	err = e.repo.SaveTask(ctx, task)
	if err != nil {
		return err
	}

	resolver, err := e.resolver(ctx, assignment.ID)
	if err != nil {
		return err
	}

	e.onTaskStatusChanged(ctx, resolver, task)
	e.publishTaskEvent(ctx, events.TaskCompleted, task, step, stage, assignment)

	return e.rollup(ctx, step, stage, assignment)
}

// SkipTask is the administrative override: the task leaves the required
// count and never completes normally.
func (e *Engine) SkipTask(ctx context.Context, taskID string) error {
	task, step, stage, assignment, err := e.loadLineage(ctx, taskID)
	if err != nil {
		return err
	}

	unlock := e.lockAssignment(assignment.ID)
	defer unlock()

	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot skip task in status %s", ErrInvalidTransition, task.Status)
	}

	task.Status = models.StatusSkipped
	task.Required = false

	err = e.repo.SaveTask(ctx, task)
	if err != nil {
		return err
	}

	resolver, err := e.resolver(ctx, assignment.ID)
	if err != nil {
		return err
	}

	e.onTaskStatusChanged(ctx, resolver, task)

	return e.rollup(ctx, step, stage, assignment)
}

// CompleteStep explicitly completes a step regardless of auto_progress,
// provided its required children are complete.
func (e *Engine) CompleteStep(ctx context.Context, stepID string) error {
	step, err := e.repo.StepByID(ctx, stepID)
	if err != nil {
		return err
	}

	stage, err := e.repo.StageByID(ctx, step.StageID)
	if err != nil {
		return err
	}

	assignment, err := e.repo.AssignmentByID(ctx, stage.AssignmentID)
	if err != nil {
		return err
	}

	unlock := e.lockAssignment(assignment.ID)
	defer unlock()

	if step.Status.IsTerminal() {
		return fmt.Errorf("%w: step already %s", ErrInvalidTransition, step.Status)
	}

	tasks, err := e.repo.TasksByStep(ctx, step.ID)
	if err != nil {
		return err
	}

	if step.RequireAllChildrenComplete && !allRequiredComplete(taskStatuses(tasks)) {
		return fmt.Errorf("%w: step has incomplete required tasks", ErrInvalidTransition)
	}

	err = e.completeStep(ctx, step, stage, assignment)
	if err != nil {
		return err
	}

	return e.rollupStage(ctx, stage, assignment)
}

// CompleteStage explicitly completes a stage regardless of auto_progress,
// provided its steps are complete. Stages with auto_progress off never
// complete through rollup, so this is their only path to completed.
func (e *Engine) CompleteStage(ctx context.Context, stageID string) error {
	stage, err := e.repo.StageByID(ctx, stageID)
	if err != nil {
		return err
	}

	assignment, err := e.repo.AssignmentByID(ctx, stage.AssignmentID)
	if err != nil {
		return err
	}

	unlock := e.lockAssignment(assignment.ID)
	defer unlock()

	if stage.Status.IsTerminal() {
		return fmt.Errorf("%w: stage already %s", ErrInvalidTransition, stage.Status)
	}

	steps, err := e.repo.StepsByStage(ctx, stage.ID)
	if err != nil {
		return err
	}

	if stage.RequireAllChildrenComplete && !allRequiredComplete(stepStatuses(steps)) {
		return fmt.Errorf("%w: stage has incomplete steps", ErrInvalidTransition)
	}

	err = e.completeStage(ctx, stage, assignment)
	if err != nil {
		return err
	}

	return e.rollupAssignment(ctx, assignment)
}

// CancelAssignment is the administrative terminal transition.
func (e *Engine) CancelAssignment(ctx context.Context, assignmentID string) error {
	assignment, err := e.repo.AssignmentByID(ctx, assignmentID)
	if err != nil {
		return err
	}

	unlock := e.lockAssignment(assignment.ID)
	defer unlock()

	if assignment.Status.IsTerminal() {
		return fmt.Errorf("%w: assignment already %s", ErrInvalidTransition, assignment.Status)
	}

	assignment.Status = models.StatusCancelled

	return e.repo.SaveAssignment(ctx, assignment)
}

// TaskEligible reports dependency eligibility without mutating anything.
func (e *Engine) TaskEligible(ctx context.Context, taskID string) (bool, error) {
	_, _, _, assignment, err := e.loadLineage(ctx, taskID)
	if err != nil {
		return false, err
	}

	resolver, err := e.resolver(ctx, assignment.ID)
	if err != nil {
		return false, err
	}

	return resolver.IsTaskEligible(taskID), nil
}

// AdvanceToStage force-moves the assignment's stage pointer. It bypasses
// child-completion rollup and dependency eligibility: a forced advance is an
// administrative move recorded in the firing audit trail by the caller.
func (e *Engine) AdvanceToStage(ctx context.Context, stageID string) error {
	stage, err := e.repo.StageByID(ctx, stageID)
	if err != nil {
		return err
	}

	assignment, err := e.repo.AssignmentByID(ctx, stage.AssignmentID)
	if err != nil {
		return err
	}

	unlock := e.lockAssignment(assignment.ID)
	defer unlock()

	if assignment.Status.IsTerminal() {
		return fmt.Errorf("%w: assignment is %s", ErrInvalidTransition, assignment.Status)
	}

	assignment.CurrentStageID = stage.ID

	if assignment.Status == models.StatusPending {
		assignment.Status = models.StatusInProgress
	}

	if stage.Status == models.StatusPending {
		stage.Status = models.StatusInProgress

		err = e.repo.SaveStage(ctx, stage)
		if err != nil {
			return err
		}
	}

	return e.repo.SaveAssignment(ctx, assignment)
}

// AdvanceToStep force-moves the parent stage's step pointer.
func (e *Engine) AdvanceToStep(ctx context.Context, stepID string) error {
	step, err := e.repo.StepByID(ctx, stepID)
	if err != nil {
		return err
	}

	stage, err := e.repo.StageByID(ctx, step.StageID)
	if err != nil {
		return err
	}

	assignment, err := e.repo.AssignmentByID(ctx, stage.AssignmentID)
	if err != nil {
		return err
	}

	unlock := e.lockAssignment(assignment.ID)
	defer unlock()

	stage.CurrentStepID = step.ID

	if stage.Status == models.StatusPending {
		stage.Status = models.StatusInProgress
	}

	if step.Status == models.StatusPending {
		step.Status = models.StatusInProgress

		err = e.repo.SaveStep(ctx, step)
		if err != nil {
			return err
		}
	}

	err = e.repo.SaveStage(ctx, stage)
	if err != nil {
		return err
	}

	assignment.CurrentStageID = stage.ID

	if assignment.Status == models.StatusPending {
		assignment.Status = models.StatusInProgress
	}

	return e.repo.SaveAssignment(ctx, assignment)
}

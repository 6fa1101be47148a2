package progression

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/practiq/automata/pkg/condition"
	"github.com/practiq/automata/pkg/dependency"
	"github.com/practiq/automata/pkg/events"
	"github.com/practiq/automata/pkg/models"
)

// rollup recomputes the step, stage and assignment aggregates from current
// child rows. It is idempotent: recounting rather than incrementing means
// duplicate or out-of-order invocations converge to the same result. The
// recursion is bounded by the fixed hierarchy depth.
func (e *Engine) rollup(ctx context.Context, step *models.Step, stage *models.Stage, assignment *models.WorkflowAssignment) error {
	err := e.rollupStep(ctx, step, stage, assignment)
	if err != nil {
		return err
	}

	return e.rollupStage(ctx, stage, assignment)
}

func (e *Engine) rollupStep(ctx context.Context, step *models.Step, stage *models.Stage, assignment *models.WorkflowAssignment) error {
	tasks, err := e.repo.TasksByStep(ctx, step.ID)
	if err != nil {
		return err
	}

	statuses := taskStatuses(tasks)
	completed, total := countComplete(statuses)
	step.Progress = models.ProgressPercent(completed, total)

	if step.Status == models.StatusPending && anyActive(statuses) {
		step.Status = models.StatusInProgress
	}

	readyToComplete := step.Status == models.StatusInProgress &&
		step.AutoProgress &&
		step.RequireAllChildrenComplete &&
		total > 0 &&
		allRequiredComplete(statuses) &&
		condition.Evaluate(step.ProgressConditions, condition.Context{Snapshot: stepSnapshot(step)})

	if readyToComplete {
		return e.completeStep(ctx, step, stage, assignment)
	}

	return e.repo.SaveStep(ctx, step)
}

func (e *Engine) completeStep(ctx context.Context, step *models.Step, stage *models.Stage, assignment *models.WorkflowAssignment) error {
	now := e.now().UTC()
	step.Status = models.StatusCompleted
	step.Progress = 100
	step.CompletedAt = &now

	err := e.repo.SaveStep(ctx, step)
	if err != nil {
		return err
	}

	e.publishHierarchyEvent(ctx, events.StepCompleted, "step", step.ID, stage, assignment, stepSnapshot(step))

	return nil
}

func (e *Engine) rollupStage(ctx context.Context, stage *models.Stage, assignment *models.WorkflowAssignment) error {
	steps, err := e.repo.StepsByStage(ctx, stage.ID)
	if err != nil {
		return err
	}

	statuses := stepStatuses(steps)
	completed, total := countComplete(statuses)
	stage.Progress = models.ProgressPercent(completed, total)

	if stage.Status == models.StatusPending && anyActive(statuses) {
		stage.Status = models.StatusInProgress
	}

	readyToComplete := stage.Status == models.StatusInProgress &&
		stage.AutoProgress &&
		stage.RequireAllChildrenComplete &&
		total > 0 &&
		allRequiredComplete(statuses) &&
		condition.Evaluate(stage.ProgressConditions, condition.Context{Snapshot: stageSnapshot(stage)})

	if readyToComplete {
		err = e.completeStage(ctx, stage, assignment)
	} else {
		err = e.repo.SaveStage(ctx, stage)
	}

	if err != nil {
		return err
	}

	return e.rollupAssignment(ctx, assignment)
}

func (e *Engine) completeStage(ctx context.Context, stage *models.Stage, assignment *models.WorkflowAssignment) error {
	now := e.now().UTC()
	stage.Status = models.StatusCompleted
	stage.Progress = 100
	stage.CompletedAt = &now

	err := e.repo.SaveStage(ctx, stage)
	if err != nil {
		return err
	}

	e.publishHierarchyEvent(ctx, events.StageCompleted, "stage", stage.ID, stage, assignment, stageSnapshot(stage))

	return nil
}

func (e *Engine) rollupAssignment(ctx context.Context, assignment *models.WorkflowAssignment) error {
	if assignment.Status.IsTerminal() {
		// Terminal assignments accept no further transitions; keep the
		// stored aggregates as they were at the terminal moment.
		return nil
	}

	stages, err := e.repo.StagesByAssignment(ctx, assignment.ID)
	if err != nil {
		return err
	}

	statuses := make([]childState, 0, len(stages))
	for _, stage := range stages {
		statuses = append(statuses, childState{status: stage.Status, required: true})
	}

	completed, total := countComplete(statuses)
	assignment.CompletedStages = completed
	assignment.TotalStages = total
	assignment.Progress = models.ProgressPercent(completed, total)

	if assignment.Status == models.StatusPending && anyActive(statuses) {
		assignment.Status = models.StatusInProgress
	}

	if total > 0 && completed == total {
		now := e.now().UTC()
		assignment.Status = models.StatusCompleted
		assignment.Progress = 100
		assignment.CompletedAt = &now

		err = e.repo.SaveAssignment(ctx, assignment)
		if err != nil {
			return err
		}

		e.publishHierarchyEvent(ctx, events.AssignmentCompleted, "assignment", assignment.ID, nil, assignment, assignmentSnapshot(assignment))

		return nil
	}

	return e.repo.SaveAssignment(ctx, assignment)
}

// onTaskStatusChanged feeds the resolver and flips blocked dependents back
// to pending once they become eligible.
func (e *Engine) onTaskStatusChanged(ctx context.Context, resolver *dependency.Resolver, task *models.Task) {
	affected := resolver.OnTaskStatusChanged(task)

	for _, dependentID := range affected {
		if !resolver.IsTaskEligible(dependentID) {
			continue
		}

		dependent, err := e.repo.TaskByID(ctx, dependentID)
		if err != nil {
			e.logger.Warn("Failed to load dependent task", "task_id", dependentID, "error", err)

			continue
		}

		if dependent.Status != models.StatusBlocked {
			continue
		}

		dependent.Status = models.StatusPending

		err = e.repo.SaveTask(ctx, dependent)
		if err != nil {
			e.logger.Warn("Failed to unblock dependent task", "task_id", dependentID, "error", err)

			continue
		}

		resolver.SetTaskState(dependent)
	}
}

func (e *Engine) markLineageInProgress(ctx context.Context, step *models.Step, stage *models.Stage, assignment *models.WorkflowAssignment) error {
	if step.Status == models.StatusPending {
		step.Status = models.StatusInProgress

		err := e.repo.SaveStep(ctx, step)
		if err != nil {
			return err
		}
	}

	if stage.Status == models.StatusPending {
		stage.Status = models.StatusInProgress

		err := e.repo.SaveStage(ctx, stage)
		if err != nil {
			return err
		}
	}

	if assignment.Status == models.StatusPending {
		assignment.Status = models.StatusInProgress

		return e.repo.SaveAssignment(ctx, assignment)
	}

	return nil
}

// loadLineage loads a task and its parents up to the assignment.
func (e *Engine) loadLineage(ctx context.Context, taskID string) (*models.Task, *models.Step, *models.Stage, *models.WorkflowAssignment, error) {
	task, err := e.repo.TaskByID(ctx, taskID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	step, err := e.repo.StepByID(ctx, task.StepID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	stage, err := e.repo.StageByID(ctx, step.StageID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	assignment, err := e.repo.AssignmentByID(ctx, stage.AssignmentID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return task, step, stage, assignment, nil
}

// resolver returns the assignment's dependency resolver, building it from
// stored edges and task states on first use.
func (e *Engine) resolver(ctx context.Context, assignmentID string) (*dependency.Resolver, error) {
	e.resolverMu.Lock()
	defer e.resolverMu.Unlock()

	if resolver, ok := e.resolvers[assignmentID]; ok {
		return resolver, nil
	}

	edges, err := e.repo.DependenciesByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	resolver := dependency.NewResolver(e.logger, edges)

	stages, err := e.repo.StagesByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	for _, stage := range stages {
		steps, err := e.repo.StepsByStage(ctx, stage.ID)
		if err != nil {
			return nil, err
		}

		for _, step := range steps {
			tasks, err := e.repo.TasksByStep(ctx, step.ID)
			if err != nil {
				return nil, err
			}

			for _, task := range tasks {
				resolver.SetTaskState(task)
			}
		}
	}

	e.resolvers[assignmentID] = resolver

	return resolver, nil
}

func (e *Engine) lockAssignment(assignmentID string) func() {
	e.lockMu.Lock()

	lock, ok := e.locks[assignmentID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[assignmentID] = lock
	}

	e.lockMu.Unlock()
	lock.Lock()

	return lock.Unlock
}

func (e *Engine) publishTaskEvent(ctx context.Context, eventName string, task *models.Task, step *models.Step, stage *models.Stage, assignment *models.WorkflowAssignment) {
	if e.publisher == nil {
		return
	}

	event := events.EntityChanged{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Timestamp: e.now().UTC(),
			TenantID:  assignment.TenantID,
		},
		EventName:    eventName,
		EntityType:   "task",
		EntityID:     task.ID,
		WorkflowID:   assignment.WorkflowID,
		AssignmentID: assignment.ID,
		StageID:      stage.ID,
		StepID:       step.ID,
		Snapshot:     task.Snapshot(),
	}

	err := e.publisher.Publish(ctx, assignment.TenantID, event)
	if err != nil {
		e.logger.Error("Failed to publish progression event", "event", eventName, "task_id", task.ID, "error", err)
	}
}

func (e *Engine) publishHierarchyEvent(ctx context.Context, eventName, entityType, entityID string, stage *models.Stage, assignment *models.WorkflowAssignment, snapshot map[string]any) {
	if e.publisher == nil {
		return
	}

	event := events.EntityChanged{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Timestamp: e.now().UTC(),
			TenantID:  assignment.TenantID,
		},
		EventName:    eventName,
		EntityType:   entityType,
		EntityID:     entityID,
		WorkflowID:   assignment.WorkflowID,
		AssignmentID: assignment.ID,
		Snapshot:     snapshot,
	}

	if stage != nil {
		event.StageID = stage.ID
	}

	err := e.publisher.Publish(ctx, assignment.TenantID, event)
	if err != nil {
		e.logger.Error("Failed to publish progression event", "event", eventName, "entity_id", entityID, "error", err)
	}
}

// childState is the slice of child state the rollup counts over.
type childState struct {
	status   models.ProgressStatus
	required bool
}

func taskStatuses(tasks []*models.Task) []childState {
	statuses := make([]childState, 0, len(tasks))
	for _, task := range tasks {
		statuses = append(statuses, childState{status: task.Status, required: task.Required})
	}

	return statuses
}

// Steps are always required children of their stage.
func stepStatuses(steps []*models.Step) []childState {
	statuses := make([]childState, 0, len(steps))
	for _, step := range steps {
		statuses = append(statuses, childState{status: step.Status, required: true})
	}

	return statuses
}

// countComplete counts completed children over all countable children.
// Skipped children leave both counts, so skipping never stalls a percentage
// at less than 100.
func countComplete(children []childState) (completed, total int) {
	for _, child := range children {
		if child.status == models.StatusSkipped {
			continue
		}

		total++

		if child.status == models.StatusCompleted {
			completed++
		}
	}

	return completed, total
}

func allRequiredComplete(children []childState) bool {
	for _, child := range children {
		if !child.required {
			continue
		}

		if child.status != models.StatusCompleted && child.status != models.StatusSkipped {
			return false
		}
	}

	return true
}

func anyActive(children []childState) bool {
	for _, child := range children {
		if child.status != models.StatusPending {
			return true
		}
	}

	return false
}

func stepSnapshot(step *models.Step) map[string]any {
	return map[string]any{
		"id":       step.ID,
		"stage_id": step.StageID,
		"name":     step.Name,
		"status":   string(step.Status),
		"progress": step.Progress,
	}
}

func stageSnapshot(stage *models.Stage) map[string]any {
	return map[string]any{
		"id":            stage.ID,
		"assignment_id": stage.AssignmentID,
		"name":          stage.Name,
		"status":        string(stage.Status),
		"progress":      stage.Progress,
	}
}

func assignmentSnapshot(assignment *models.WorkflowAssignment) map[string]any {
	return map[string]any{
		"id":          assignment.ID,
		"workflow_id": assignment.WorkflowID,
		"subject_id":  assignment.SubjectID,
		"status":      string(assignment.Status),
		"progress":    assignment.Progress,
	}
}

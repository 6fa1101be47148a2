// Package memory provides the in-process persistence implementation used by
// tests and local development. Values are copied on read and write so
// callers never share memory with the store, matching the behavior of a real
// database round-trip.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
)

type Persistence struct {
	mu sync.RWMutex

	triggers      map[string]models.Trigger
	triggerEvents map[string]models.TriggerEvent
	eventOrder    []string

	assignments  map[string]models.WorkflowAssignment
	stages       map[string]models.Stage
	steps        map[string]models.Step
	tasks        map[string]models.Task
	dependencies map[string]models.TaskDependency
}

func NewPersistence() *Persistence {
	return &Persistence{
		triggers:      make(map[string]models.Trigger),
		triggerEvents: make(map[string]models.TriggerEvent),
		assignments:   make(map[string]models.WorkflowAssignment),
		stages:        make(map[string]models.Stage),
		steps:         make(map[string]models.Step),
		tasks:         make(map[string]models.Task),
		dependencies:  make(map[string]models.TaskDependency),
	}
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p
}

func (p *Persistence) TriggerEventRepository() persistence.TriggerEventRepository {
	return p
}

func (p *Persistence) ProgressionRepository() persistence.ProgressionRepository {
	return p
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// Trigger repository

func (p *Persistence) SaveTrigger(_ context.Context, trigger *models.Trigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.triggers[trigger.ID] = *trigger

	return nil
}

func (p *Persistence) TriggerByID(_ context.Context, id string) (*models.Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	trigger, ok := p.triggers[id]
	if !ok {
		return nil, persistence.NewTriggerError("TriggerByID", id, persistence.ErrTriggerNotFound)
	}

	return &trigger, nil
}

func (p *Persistence) TriggersByTenant(_ context.Context, tenantID string) ([]*models.Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var matches []*models.Trigger

	for _, trigger := range p.triggers {
		if trigger.TenantID == tenantID {
			t := trigger
			matches = append(matches, &t)
		}
	}

	sortTriggers(matches)

	return matches, nil
}

func (p *Persistence) FindByEvent(_ context.Context, tenantID, eventName string) ([]*models.Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var matches []*models.Trigger

	for _, trigger := range p.triggers {
		if trigger.Enabled && trigger.Mode == models.TriggerModeEvent &&
			trigger.TenantID == tenantID && trigger.EventName == eventName {
			t := trigger
			matches = append(matches, &t)
		}
	}

	sortTriggers(matches)

	return matches, nil
}

func (p *Persistence) FindDue(_ context.Context, now time.Time) ([]*models.Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var due []*models.Trigger

	for _, trigger := range p.triggers {
		if trigger.Enabled && trigger.Mode == models.TriggerModeSchedule &&
			!trigger.IsExecuting &&
			trigger.NextExecutionAt != nil && !trigger.NextExecutionAt.After(now) {
			t := trigger
			due = append(due, &t)
		}
	}

	sortTriggers(due)

	return due, nil
}

func (p *Persistence) UpdateExecution(_ context.Context, trigger *models.Trigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, ok := p.triggers[trigger.ID]
	if !ok {
		return persistence.NewTriggerError("UpdateExecution", trigger.ID, persistence.ErrTriggerNotFound)
	}

	stored.LastExecutedAt = trigger.LastExecutedAt
	stored.NextExecutionAt = trigger.NextExecutionAt
	stored.Enabled = trigger.Enabled
	stored.UpdatedAt = time.Now().UTC()
	p.triggers[trigger.ID] = stored

	return nil
}

// Acquire implements the trigger row lock: a single conditional update on
// is_executing/locked_at, the same shape the SQL implementation uses.
func (p *Persistence) Acquire(_ context.Context, key string, staleness time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	trigger, ok := p.triggers[key]
	if !ok {
		return false, persistence.NewTriggerError("Acquire", key, persistence.ErrTriggerNotFound)
	}

	now := time.Now().UTC()

	if trigger.IsExecuting && trigger.LockedAt != nil && now.Sub(*trigger.LockedAt) < staleness {
		return false, nil
	}

	trigger.IsExecuting = true
	trigger.LockedAt = &now
	p.triggers[key] = trigger

	return true, nil
}

// Release clears the trigger row lock.
func (p *Persistence) Release(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	trigger, ok := p.triggers[key]
	if !ok {
		return nil
	}

	trigger.IsExecuting = false
	trigger.LockedAt = nil
	p.triggers[key] = trigger

	return nil
}

// Trigger event repository

func (p *Persistence) SaveTriggerEvent(_ context.Context, event *models.TriggerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.triggerEvents[event.ID]; !exists {
		p.eventOrder = append(p.eventOrder, event.ID)
	}

	p.triggerEvents[event.ID] = *event

	return nil
}

func (p *Persistence) TriggerEventsByTrigger(_ context.Context, triggerID string, limit int) ([]*models.TriggerEvent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []*models.TriggerEvent

	// Newest first.
	for i := len(p.eventOrder) - 1; i >= 0; i-- {
		event := p.triggerEvents[p.eventOrder[i]]
		if event.TriggerID != triggerID {
			continue
		}

		e := event
		result = append(result, &e)

		if limit > 0 && len(result) >= limit {
			break
		}
	}

	return result, nil
}

// Progression repository

func (p *Persistence) AssignmentByID(_ context.Context, id string) (*models.WorkflowAssignment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	assignment, ok := p.assignments[id]
	if !ok {
		return nil, persistence.ErrAssignmentNotFound
	}

	return &assignment, nil
}

func (p *Persistence) SaveAssignment(_ context.Context, assignment *models.WorkflowAssignment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.assignments[assignment.ID] = *assignment

	return nil
}

func (p *Persistence) StagesByAssignment(_ context.Context, assignmentID string) ([]*models.Stage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var stages []*models.Stage

	for _, stage := range p.stages {
		if stage.AssignmentID == assignmentID {
			s := stage
			stages = append(stages, &s)
		}
	}

	sort.Slice(stages, func(i, j int) bool { return stages[i].Position < stages[j].Position })

	return stages, nil
}

func (p *Persistence) StageByID(_ context.Context, id string) (*models.Stage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stage, ok := p.stages[id]
	if !ok {
		return nil, persistence.ErrStageNotFound
	}

	return &stage, nil
}

func (p *Persistence) SaveStage(_ context.Context, stage *models.Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stages[stage.ID] = *stage

	return nil
}

func (p *Persistence) StepsByStage(_ context.Context, stageID string) ([]*models.Step, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var steps []*models.Step

	for _, step := range p.steps {
		if step.StageID == stageID {
			s := step
			steps = append(steps, &s)
		}
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Position < steps[j].Position })

	return steps, nil
}

func (p *Persistence) StepByID(_ context.Context, id string) (*models.Step, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	step, ok := p.steps[id]
	if !ok {
		return nil, persistence.ErrStepNotFound
	}

	return &step, nil
}

func (p *Persistence) SaveStep(_ context.Context, step *models.Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.steps[step.ID] = *step

	return nil
}

func (p *Persistence) TasksByStep(_ context.Context, stepID string) ([]*models.Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var tasks []*models.Task

	for _, task := range p.tasks {
		if task.StepID == stepID {
			t := task
			tasks = append(tasks, &t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	return tasks, nil
}

func (p *Persistence) TaskByID(_ context.Context, id string) (*models.Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	task, ok := p.tasks[id]
	if !ok {
		return nil, persistence.ErrTaskNotFound
	}

	return &task, nil
}

func (p *Persistence) SaveTask(_ context.Context, task *models.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tasks[task.ID] = *task

	return nil
}

func (p *Persistence) DependenciesByAssignment(_ context.Context, assignmentID string) ([]*models.TaskDependency, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var deps []*models.TaskDependency

	for _, dep := range p.dependencies {
		if dep.AssignmentID == assignmentID {
			d := dep
			deps = append(deps, &d)
		}
	}

	sort.Slice(deps, func(i, j int) bool { return deps[i].ID < deps[j].ID })

	return deps, nil
}

func (p *Persistence) SaveDependency(_ context.Context, dep *models.TaskDependency) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dependencies[dep.ID] = *dep

	return nil
}

func sortTriggers(triggers []*models.Trigger) {
	sort.Slice(triggers, func(i, j int) bool { return triggers[i].ID < triggers[j].ID })
}

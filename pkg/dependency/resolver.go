// Package dependency maintains the directed graph of task-to-task
// dependencies within one workflow assignment and computes which tasks are
// unblocked.
package dependency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/practiq/automata/pkg/models"
)

// taskState is the slice of upstream-task state the resolver needs to judge
// an edge.
type taskState struct {
	status      models.ProgressStatus
	startedAt   *time.Time
	completedAt *time.Time
}

// Resolver holds the dependency graph of a single workflow assignment.
// Methods are safe for concurrent use. The authoring layer rejects cycles at
// definition time; the resolver still detects them defensively and treats
// every task on a cycle as permanently ineligible.
type Resolver struct {
	mu     sync.RWMutex
	logger *slog.Logger

	// incoming[taskID] lists the edges that must be satisfied before the
	// task may start.
	incoming map[string][]*models.TaskDependency

	// outgoing[taskID] lists edges whose upstream is the task, for
	// recomputation when its status changes.
	outgoing map[string][]*models.TaskDependency

	tasks map[string]taskState

	// cyclic caches the task IDs found on a cycle; rebuilt whenever the
	// edge set changes.
	cyclic map[string]bool
	now    func() time.Time
}

// NewResolver builds a resolver from the assignment's dependency edges.
func NewResolver(logger *slog.Logger, edges []*models.TaskDependency) *Resolver {
	r := &Resolver{
		logger:   logger.With("module", "dependency_resolver"),
		incoming: make(map[string][]*models.TaskDependency),
		outgoing: make(map[string][]*models.TaskDependency),
		tasks:    make(map[string]taskState),
		now:      time.Now,
	}

	for _, edge := range edges {
		r.incoming[edge.TaskID] = append(r.incoming[edge.TaskID], edge)
		r.outgoing[edge.DependsOnTaskID] = append(r.outgoing[edge.DependsOnTaskID], edge)
	}

	r.rebuildCycleCache()

	return r
}

// SetTaskState seeds or updates the resolver's view of a task without
// recomputing edges. Used when loading an assignment.
func (r *Resolver) SetTaskState(task *models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[task.ID] = taskState{
		status:      task.Status,
		startedAt:   task.StartedAt,
		completedAt: task.CompletedAt,
	}
}

// OnTaskStatusChanged records the upstream task's new status and recomputes
// IsSatisfied for every direct dependent edge. It returns the IDs of tasks
// whose eligibility may have changed, for the caller to re-check.
func (r *Resolver) OnTaskStatusChanged(task *models.Task) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[task.ID] = taskState{
		status:      task.Status,
		startedAt:   task.StartedAt,
		completedAt: task.CompletedAt,
	}

	affected := make([]string, 0, len(r.outgoing[task.ID]))

	for _, edge := range r.outgoing[task.ID] {
		edge.IsSatisfied = r.edgeSatisfied(edge)
		affected = append(affected, edge.TaskID)
	}

	return affected
}

// IsTaskEligible reports whether every blocking incoming edge of the task is
// satisfied. Tasks on a detected cycle are never eligible.
func (r *Resolver) IsTaskEligible(taskID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.cyclic[taskID] {
		return false
	}

	for _, edge := range r.incoming[taskID] {
		if !edge.Blocking {
			continue
		}

		if !r.edgeSatisfied(edge) {
			return false
		}
	}

	return true
}

// Edges returns the incoming edges of a task with their current cached
// satisfaction, for persistence of the IsSatisfied cache.
func (r *Resolver) Edges(taskID string) []*models.TaskDependency {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.incoming[taskID]
}

// edgeSatisfied applies the dependency-type rule to one edge. Non-blocking
// edges are informational and always count as satisfied.
func (r *Resolver) edgeSatisfied(edge *models.TaskDependency) bool {
	if !edge.Blocking {
		return true
	}

	upstream, known := r.tasks[edge.DependsOnTaskID]
	if !known {
		// Unknown upstream task: degraded data, keep the dependent blocked.
		return false
	}

	var reached *time.Time

	switch edge.Type {
	case models.DependencyStartToStart, models.DependencyStartToFinish:
		if upstream.status != models.StatusInProgress && upstream.status != models.StatusCompleted {
			return false
		}

		reached = upstream.startedAt
	default:
		// finish_to_start and finish_to_finish wait for completion; so does
		// any unrecognized type, the conservative reading.
		if upstream.status != models.StatusCompleted {
			return false
		}

		reached = upstream.completedAt
	}

	if edge.Lag <= 0 {
		return true
	}

	if reached == nil {
		return false
	}

	return r.now().Sub(*reached) >= edge.Lag
}

// rebuildCycleCache runs a topological check over the edge set and records
// every task on a cycle. Caller holds no lock during construction; callers
// mutating edges must hold mu.
func (r *Resolver) rebuildCycleCache() {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int)
	r.cyclic = make(map[string]bool)

	var visit func(id string) bool

	visit = func(id string) bool {
		switch state[id] {
		case visiting:
			return true
		case done:
			return r.cyclic[id]
		}

		state[id] = visiting

		for _, edge := range r.incoming[id] {
			if visit(edge.DependsOnTaskID) {
				r.cyclic[id] = true
			}
		}

		state[id] = done

		return r.cyclic[id]
	}

	for id := range r.incoming {
		visit(id)
	}

	if len(r.cyclic) > 0 {
		ids := make([]string, 0, len(r.cyclic))
		for id := range r.cyclic {
			ids = append(ids, id)
		}

		r.logger.Warn("Dependency cycle detected, tasks permanently ineligible", "task_ids", ids)
	}
}

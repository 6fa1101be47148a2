package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/practiq/automata/pkg/models"
	"github.com/practiq/automata/pkg/persistence"
)

// ProgressionRepository stores the assignment hierarchy and dependency
// edges.
type ProgressionRepository struct {
	db *sql.DB
}

func NewProgressionRepository(db *sql.DB) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

func (r *ProgressionRepository) AssignmentByID(ctx context.Context, id string) (*models.WorkflowAssignment, error) {
	query := `
		SELECT id, tenant_id, workflow_id, subject_id, status, current_stage_id,
		       progress, completed_stages, total_stages, created_at, updated_at, completed_at
		FROM workflow_assignments
		WHERE id = $1
	`

	var (
		assignment   models.WorkflowAssignment
		status       string
		currentStage sql.NullString
		completedAt  sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&assignment.ID,
		&assignment.TenantID,
		&assignment.WorkflowID,
		&assignment.SubjectID,
		&status,
		&currentStage,
		&assignment.Progress,
		&assignment.CompletedStages,
		&assignment.TotalStages,
		&assignment.CreatedAt,
		&assignment.UpdatedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrAssignmentNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query assignment %s: %w", id, err)
	}

	assignment.Status = models.ProgressStatus(status)
	assignment.CurrentStageID = currentStage.String

	if completedAt.Valid {
		assignment.CompletedAt = &completedAt.Time
	}

	return &assignment, nil
}

func (r *ProgressionRepository) SaveAssignment(ctx context.Context, assignment *models.WorkflowAssignment) error {
	query := `
		INSERT INTO workflow_assignments (
			id, tenant_id, workflow_id, subject_id, status, current_stage_id,
			progress, completed_stages, total_stages, created_at, updated_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
		  , current_stage_id = EXCLUDED.current_stage_id
		  , progress = EXCLUDED.progress
		  , completed_stages = EXCLUDED.completed_stages
		  , total_stages = EXCLUDED.total_stages
		  , updated_at = NOW()
		  , completed_at = EXCLUDED.completed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		assignment.ID,
		assignment.TenantID,
		assignment.WorkflowID,
		assignment.SubjectID,
		string(assignment.Status),
		nullString(assignment.CurrentStageID),
		assignment.Progress,
		assignment.CompletedStages,
		assignment.TotalStages,
		assignment.CreatedAt,
		nullTime(assignment.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save assignment %s: %w", assignment.ID, err)
	}

	return nil
}

func (r *ProgressionRepository) StagesByAssignment(ctx context.Context, assignmentID string) ([]*models.Stage, error) {
	query := selectStages + ` WHERE assignment_id = $1 ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}

	defer func() { _ = rows.Close() }()

	stages := make([]*models.Stage, 0)

	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}

		stages = append(stages, stage)
	}

	return stages, rows.Err()
}

func (r *ProgressionRepository) StageByID(ctx context.Context, id string) (*models.Stage, error) {
	query := selectStages + ` WHERE id = $1`

	stage, err := scanStage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrStageNotFound
	}

	return stage, err
}

func (r *ProgressionRepository) SaveStage(ctx context.Context, stage *models.Stage) error {
	conditions, err := marshalConditions(stage.ProgressConditions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO stages (
			id, assignment_id, name, position, status, auto_progress,
			require_all_children_complete, progress_conditions, progress,
			current_step_id, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
		  , auto_progress = EXCLUDED.auto_progress
		  , require_all_children_complete = EXCLUDED.require_all_children_complete
		  , progress_conditions = EXCLUDED.progress_conditions
		  , progress = EXCLUDED.progress
		  , current_step_id = EXCLUDED.current_step_id
		  , completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		stage.ID,
		stage.AssignmentID,
		stage.Name,
		stage.Position,
		string(stage.Status),
		stage.AutoProgress,
		stage.RequireAllChildrenComplete,
		conditions,
		stage.Progress,
		nullString(stage.CurrentStepID),
		nullTime(stage.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save stage %s: %w", stage.ID, err)
	}

	return nil
}

func (r *ProgressionRepository) StepsByStage(ctx context.Context, stageID string) ([]*models.Step, error) {
	query := selectSteps + ` WHERE stage_id = $1 ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() { _ = rows.Close() }()

	steps := make([]*models.Step, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}

		steps = append(steps, step)
	}

	return steps, rows.Err()
}

func (r *ProgressionRepository) StepByID(ctx context.Context, id string) (*models.Step, error) {
	query := selectSteps + ` WHERE id = $1`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrStepNotFound
	}

	return step, err
}

func (r *ProgressionRepository) SaveStep(ctx context.Context, step *models.Step) error {
	conditions, err := marshalConditions(step.ProgressConditions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO steps (
			id, stage_id, name, position, status, auto_progress,
			require_all_children_complete, progress_conditions, progress, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
		  , auto_progress = EXCLUDED.auto_progress
		  , require_all_children_complete = EXCLUDED.require_all_children_complete
		  , progress_conditions = EXCLUDED.progress_conditions
		  , progress = EXCLUDED.progress
		  , completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.StageID,
		step.Name,
		step.Position,
		string(step.Status),
		step.AutoProgress,
		step.RequireAllChildrenComplete,
		conditions,
		step.Progress,
		nullTime(step.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save step %s: %w", step.ID, err)
	}

	return nil
}

func (r *ProgressionRepository) TasksByStep(ctx context.Context, stepID string) ([]*models.Task, error) {
	query := selectTasks + ` WHERE step_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, stepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer func() { _ = rows.Close() }()

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

func (r *ProgressionRepository) TaskByID(ctx context.Context, id string) (*models.Task, error) {
	query := selectTasks + ` WHERE id = $1`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTaskNotFound
	}

	return task, err
}

func (r *ProgressionRepository) SaveTask(ctx context.Context, task *models.Task) error {
	var fields []byte

	if task.Fields != nil {
		var err error

		fields, err = json.Marshal(task.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode task fields: %w", err)
		}
	}

	query := `
		INSERT INTO tasks (
			id, step_id, name, status, required, priority, fields, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
		  , required = EXCLUDED.required
		  , priority = EXCLUDED.priority
		  , fields = EXCLUDED.fields
		  , started_at = EXCLUDED.started_at
		  , completed_at = EXCLUDED.completed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.StepID,
		task.Name,
		string(task.Status),
		task.Required,
		nullString(task.Priority),
		fields,
		nullTime(task.StartedAt),
		nullTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}

	return nil
}

func (r *ProgressionRepository) DependenciesByAssignment(ctx context.Context, assignmentID string) ([]*models.TaskDependency, error) {
	query := `
		SELECT id, assignment_id, task_id, depends_on_task_id, type, lag_ms, blocking, is_satisfied
		FROM task_dependencies
		WHERE assignment_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task dependencies: %w", err)
	}

	defer func() { _ = rows.Close() }()

	deps := make([]*models.TaskDependency, 0)

	for rows.Next() {
		var (
			dep     models.TaskDependency
			depType string
			lagMs   int64
		)

		err := rows.Scan(
			&dep.ID,
			&dep.AssignmentID,
			&dep.TaskID,
			&dep.DependsOnTaskID,
			&depType,
			&lagMs,
			&dep.Blocking,
			&dep.IsSatisfied,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task dependency: %w", err)
		}

		dep.Type = models.DependencyType(depType)
		dep.Lag = time.Duration(lagMs) * time.Millisecond
		deps = append(deps, &dep)
	}

	return deps, rows.Err()
}

func (r *ProgressionRepository) SaveDependency(ctx context.Context, dep *models.TaskDependency) error {
	query := `
		INSERT INTO task_dependencies (
			id, assignment_id, task_id, depends_on_task_id, type, lag_ms, blocking, is_satisfied
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type
		  , lag_ms = EXCLUDED.lag_ms
		  , blocking = EXCLUDED.blocking
		  , is_satisfied = EXCLUDED.is_satisfied
	`

	_, err := r.db.ExecContext(ctx, query,
		dep.ID,
		dep.AssignmentID,
		dep.TaskID,
		dep.DependsOnTaskID,
		string(dep.Type),
		dep.Lag.Milliseconds(),
		dep.Blocking,
		dep.IsSatisfied,
	)
	if err != nil {
		return fmt.Errorf("failed to save task dependency %s: %w", dep.ID, err)
	}

	return nil
}

const selectStages = `
	SELECT id, assignment_id, name, position, status, auto_progress,
	       require_all_children_complete, progress_conditions, progress,
	       current_step_id, completed_at
	FROM stages
`

const selectSteps = `
	SELECT id, stage_id, name, position, status, auto_progress,
	       require_all_children_complete, progress_conditions, progress, completed_at
	FROM steps
`

const selectTasks = `
	SELECT id, step_id, name, status, required, priority, fields, started_at, completed_at
	FROM tasks
`

func scanStage(row rowScanner) (*models.Stage, error) {
	var (
		stage       models.Stage
		status      string
		conditions  []byte
		currentStep sql.NullString
		completedAt sql.NullTime
	)

	err := row.Scan(
		&stage.ID,
		&stage.AssignmentID,
		&stage.Name,
		&stage.Position,
		&status,
		&stage.AutoProgress,
		&stage.RequireAllChildrenComplete,
		&conditions,
		&stage.Progress,
		&currentStep,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	stage.Status = models.ProgressStatus(status)
	stage.CurrentStepID = currentStep.String

	if completedAt.Valid {
		stage.CompletedAt = &completedAt.Time
	}

	err = unmarshalColumn(conditions, &stage.ProgressConditions)
	if err != nil {
		return nil, fmt.Errorf("failed to decode progress conditions: %w", err)
	}

	return &stage, nil
}

func scanStep(row rowScanner) (*models.Step, error) {
	var (
		step        models.Step
		status      string
		conditions  []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&step.ID,
		&step.StageID,
		&step.Name,
		&step.Position,
		&status,
		&step.AutoProgress,
		&step.RequireAllChildrenComplete,
		&conditions,
		&step.Progress,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	step.Status = models.ProgressStatus(status)

	if completedAt.Valid {
		step.CompletedAt = &completedAt.Time
	}

	err = unmarshalColumn(conditions, &step.ProgressConditions)
	if err != nil {
		return nil, fmt.Errorf("failed to decode progress conditions: %w", err)
	}

	return &step, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task        models.Task
		status      string
		priority    sql.NullString
		fields      []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.StepID,
		&task.Name,
		&status,
		&task.Required,
		&priority,
		&fields,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = models.ProgressStatus(status)
	task.Priority = priority.String

	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}

	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}

	err = unmarshalColumn(fields, &task.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode task fields: %w", err)
	}

	return &task, nil
}

func marshalConditions(node *models.ConditionNode) ([]byte, error) {
	if node == nil {
		return nil, nil
	}

	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode progress conditions: %w", err)
	}

	return data, nil
}

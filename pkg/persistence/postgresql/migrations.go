package postgresql

// migrations returns the ordered schema migrations for the engine's tables.
// JSON-shaped definition columns (condition trees, action lists, schedules)
// are stored as JSONB; lookup paths used by the dispatcher and scheduler are
// indexed.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS triggers (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				mode TEXT NOT NULL,
				event_name TEXT,
				schedule JSONB,
				condition JSONB,
				scope JSONB NOT NULL DEFAULT '{}',
				actions JSONB NOT NULL DEFAULT '[]',
				auto_advance JSONB NOT NULL DEFAULT '{}',
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				is_executing BOOLEAN NOT NULL DEFAULT FALSE,
				locked_at TIMESTAMP WITH TIME ZONE,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				next_execution_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_triggers_tenant_event
				ON triggers (tenant_id, event_name)
				WHERE enabled = TRUE AND mode = 'event';

			CREATE INDEX IF NOT EXISTS idx_triggers_next_execution
				ON triggers (next_execution_at)
				WHERE enabled = TRUE AND mode = 'schedule';

			CREATE TABLE IF NOT EXISTS trigger_events (
				id TEXT PRIMARY KEY,
				trigger_id TEXT NOT NULL,
				tenant_id TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				old_value JSONB,
				new_value JSONB,
				scheduled_for TIMESTAMP WITH TIME ZONE,
				fired_at TIMESTAMP WITH TIME ZONE NOT NULL,
				action_results JSONB NOT NULL DEFAULT '[]',
				status TEXT NOT NULL,
				error TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_trigger_events_trigger
				ON trigger_events (trigger_id, fired_at DESC);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS workflow_assignments (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL,
				subject_id TEXT NOT NULL,
				status TEXT NOT NULL,
				current_stage_id TEXT,
				progress INTEGER NOT NULL DEFAULT 0,
				completed_stages INTEGER NOT NULL DEFAULT 0,
				total_stages INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE IF NOT EXISTS stages (
				id TEXT PRIMARY KEY,
				assignment_id TEXT NOT NULL REFERENCES workflow_assignments (id),
				name TEXT NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL,
				auto_progress BOOLEAN NOT NULL DEFAULT FALSE,
				require_all_children_complete BOOLEAN NOT NULL DEFAULT TRUE,
				progress_conditions JSONB,
				progress INTEGER NOT NULL DEFAULT 0,
				current_step_id TEXT,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_stages_assignment ON stages (assignment_id, position);

			CREATE TABLE IF NOT EXISTS steps (
				id TEXT PRIMARY KEY,
				stage_id TEXT NOT NULL REFERENCES stages (id),
				name TEXT NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL,
				auto_progress BOOLEAN NOT NULL DEFAULT FALSE,
				require_all_children_complete BOOLEAN NOT NULL DEFAULT TRUE,
				progress_conditions JSONB,
				progress INTEGER NOT NULL DEFAULT 0,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_steps_stage ON steps (stage_id, position);

			CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				step_id TEXT NOT NULL REFERENCES steps (id),
				name TEXT NOT NULL,
				status TEXT NOT NULL,
				required BOOLEAN NOT NULL DEFAULT TRUE,
				priority TEXT,
				fields JSONB,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_tasks_step ON tasks (step_id);

			CREATE TABLE IF NOT EXISTS task_dependencies (
				id TEXT PRIMARY KEY,
				assignment_id TEXT NOT NULL,
				task_id TEXT NOT NULL REFERENCES tasks (id),
				depends_on_task_id TEXT NOT NULL REFERENCES tasks (id),
				type TEXT NOT NULL DEFAULT 'finish_to_start',
				lag_ms BIGINT NOT NULL DEFAULT 0,
				blocking BOOLEAN NOT NULL DEFAULT TRUE,
				is_satisfied BOOLEAN NOT NULL DEFAULT FALSE
			);

			CREATE INDEX IF NOT EXISTS idx_task_dependencies_assignment
				ON task_dependencies (assignment_id);
		`,
	}
}

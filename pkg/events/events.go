// Package events defines the event types exchanged between the progression
// engine, the dispatcher and the surrounding application.
package events

import (
	"time"
)

// EventClass identifies the wire shape of an event on the bus.
type EventClass string

// Topic is the single bus topic. The event class metadata discriminates
// payload shapes, so consumers subscribe once and pick the classes they
// handle.
const Topic = "automata.events"

const EventKeyMetadataKey = "key"
const EventClassMetadataKey = "event_class"

const (
	EntityChangedClass EventClass = "entity.changed"
	TriggerFiredClass  EventClass = "trigger.fired"
)

// Well-known entity-change event names. The dispatcher matches triggers by
// these names; CRUD paths outside the engine may publish further names
// (e.g. "invoice.paid") without the engine having to know them.
const (
	TaskStarted         = "task.started"
	TaskCompleted       = "task.completed"
	TaskBlocked         = "task.blocked"
	StepCompleted       = "step.completed"
	StageCompleted      = "stage.completed"
	AssignmentCompleted = "assignment.completed"
	FieldChanged        = "field.changed"
)

type Event interface {
	GetClass() EventClass
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EntityChanged is published after a mutating transaction commits, for every
// task/step/stage/field change the engine should see. It is the dispatcher's
// sole input.
type EntityChanged struct {
	BaseEvent

	EventName  string `json:"event_name"` // e.g. "task.completed"
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`

	// Position of the entity in the hierarchy, for trigger scoping.
	WorkflowID   string `json:"workflow_id,omitempty"`
	AssignmentID string `json:"assignment_id,omitempty"`
	StageID      string `json:"stage_id,omitempty"`
	StepID       string `json:"step_id,omitempty"`

	// Field delta for field.changed events.
	Field    string `json:"field,omitempty"`
	OldValue any    `json:"old_value,omitempty"`
	NewValue any    `json:"new_value,omitempty"`

	// Snapshot of the entity's fields at publish time, the condition
	// evaluator's input.
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

func (e EntityChanged) GetClass() EventClass {
	return EntityChangedClass
}

// TriggerFired announces a completed firing, mirroring the persisted
// TriggerEvent audit row for consumers that follow automation live.
type TriggerFired struct {
	BaseEvent

	TriggerID      string `json:"trigger_id"`
	TriggerEventID string `json:"trigger_event_id"`
	Status         string `json:"status"`
}

func (e TriggerFired) GetClass() EventClass {
	return TriggerFiredClass
}

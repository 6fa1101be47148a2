// Package protocol defines the narrow interfaces between the engine and the
// excluded subsystems that execute action side effects.
package protocol

import (
	"context"

	"github.com/practiq/automata/pkg/models"
)

// TaskCreator is the task-creation service. The returned task is persisted
// by the service; later actions in the same firing may reference it.
type TaskCreator interface {
	CreateTask(ctx context.Context, tenantID string, params models.CreateTaskParams) (*models.Task, error)
}

// Notifier is the notification-delivery service (email/SMS/push). Delivery
// is opaque to the engine.
type Notifier interface {
	Notify(ctx context.Context, tenantID string, params models.NotifyParams) error
}

// AgentInvoker runs an AI agent as an opaque action.
type AgentInvoker interface {
	InvokeAgent(ctx context.Context, tenantID string, params models.InvokeAgentParams) error
}

// FieldWriter applies a set_field action to the entity that caused the
// firing. The CRUD layer owns the write and re-publishes the resulting
// field.changed event.
type FieldWriter interface {
	SetField(ctx context.Context, tenantID string, entity models.EntityRef, field string, value any) error
}

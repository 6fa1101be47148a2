// Package eventbus provides event-driven communication infrastructure
// between the engine's workers and the surrounding application.
package eventbus

import (
	"context"

	"github.com/practiq/automata/pkg/events"
)

type EventPublisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

type EventSubscriber interface {
	Handle(class events.EventClass, handler EventHandler)
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

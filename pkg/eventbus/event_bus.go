// Package eventbus carries workflow change announcements between components.
package eventbus

import (
	"context"

	"github.com/dukex/payflow/pkg/events"
)

// Event is an announcement published on the workflows topic.
type Event interface {
	GetType() events.EventType
}

var (
	_ Event = (*events.AccountUpdated)(nil)
	_ Event = (*events.WorkflowChanged)(nil)
)

// EventPublisher publishes announcements. key orders messages on partitioned transports;
// the engine uses the owner.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches received announcements to the handler registered for their
// type. Announcements of a type with no handler are acknowledged and dropped.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a decoded *events.AccountUpdated or *events.WorkflowChanged.
// Returning an error asks the transport to redeliver.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// Package eventbus provides the in-process event backbone of the shell:
// command settlements, workflow lifecycle and user-named custom events all
// travel through it.
package eventbus

import (
	"context"

	"github.com/onios/onid/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Off(eventType events.EventType)
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

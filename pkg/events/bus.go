package events

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/groupaccess/pkg/observability"
)

// Handler reacts to a published event
type Handler func(ctx context.Context, event Event) error

// Publisher publishes committed changes
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Bus delivers events to its subscribers in subscription order
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *observability.Logger
}

// NewBus creates an event bus
func NewBus(logger *observability.Logger) *Bus {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Bus{logger: logger}
}

// Subscribe adds a handler for all events
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the events to every handler
func (b *Bus) Publish(ctx context.Context, events ...Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	var errs []error
	for _, event := range events {
		for _, h := range handlers {
			if err := h(ctx, event); err != nil {
				b.logger.WithError(err).WithField("event", event.Name()).Error("Event handler failed")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(ctx context.Context, events ...Event) error { return nil }

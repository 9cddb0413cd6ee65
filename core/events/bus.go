// Package events publishes notifications after a successful dispatch,
// such as "user.created" or "user.removed".
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event describes one dispatched entity operation.
type Event struct {
	// Name is "<entity>.<outcome>", e.g. "user.created".
	Name string

	Entity string

	// Verb is the dispatcher verb: create, get, update or remove.
	Verb string

	// InstanceID correlates the event with the instance's log lines.
	InstanceID string

	// Record is the hook result, nil for void results.
	Record map[string]any
}

// Handler processes an event. Errors are logged and never reach the
// dispatch caller.
type Handler func(ctx context.Context, event Event) error

// Bus is a synchronous publish/subscribe bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a pattern:
//   - "user.created" - exact match
//   - "user.*" - all events of one entity
//   - "*" - all events
func (b *Bus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = append(b.handlers[pattern], handler)
}

// Publish calls every matching handler in order: exact, entity wildcard, global.
func (b *Bus) Publish(ctx context.Context, event Event) {
	matched := b.match(event.Name)

	b.logger.Debug().
		Str("event", event.Name).
		Str("instance", event.InstanceID).
		Int("handlers", len(matched)).
		Msg("event published")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// HasSubscribers checks if any handler would receive the event.
func (b *Bus) HasSubscribers(name string) bool {
	return len(b.match(name)) > 0
}

func (b *Bus) match(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	matched = append(matched, b.handlers[name]...)
	if entity, _, ok := strings.Cut(name, "."); ok {
		matched = append(matched, b.handlers[entity+".*"]...)
	}
	matched = append(matched, b.handlers["*"]...)
	return matched
}

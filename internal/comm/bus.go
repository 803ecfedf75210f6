package comm

import (
	"log/slog"
	"sync"
)

// Handler is a callback for engine messages.
type Handler func(Message)

// Bus provides pub/sub fan-out of engine messages to in-process observers
// (web socket hub, MQTT forwarder). It is distinct from Channel: a Channel
// belongs to one run and carries the termination flag; the Bus re-publishes
// drained messages to any number of subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
	logger   *slog.Logger
}

// NewBus creates a new message bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[uint64]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for all messages.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Publish sends a message to all handlers.
// Handlers are called synchronously; a panicking handler is recovered.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("message handler panic", "type", msg.Type, "panic", r)
				}
			}()
			h(msg)
		}()
	}
}

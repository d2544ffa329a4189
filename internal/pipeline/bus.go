package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/logfields"
)

// EventStore defines the interface for persisting events.
// This is a subset of eventstore.Store to avoid circular dependencies.
type EventStore interface {
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error
}

// Handler processes an Event; return error to signal failure.
type Handler func(ctx context.Context, e Event) error

// Bus is a simple synchronous pub/sub event bus. Events are persisted to the
// optional store before delivery. Handler failures never stop delivery to the
// remaining handlers; they are returned joined and, when a dead letter queue
// is attached, enqueued there.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	eventStore  EventStore
	dlq         *DeadLetterQueue
	logger      *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithEventStore persists every published event.
func WithEventStore(store EventStore) BusOption {
	return func(b *Bus) { b.eventStore = store }
}

// WithDeadLetterQueue collects failed deliveries.
func WithDeadLetterQueue(dlq *DeadLetterQueue) BusOption {
	return func(b *Bus) { b.dlq = dlq }
}

// WithBusLogger sets the logger for persistence and delivery failures.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// NewBus creates a bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{subscribers: map[string][]Handler{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a given event name. The name "*"
// receives every event.
func (b *Bus) Subscribe(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[event] = append(b.subscribers[event], h)
	b.mu.Unlock()
}

// Publish persists e and delivers it to all handlers synchronously.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if b == nil {
		return nil
	}
	if b.eventStore != nil {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", e.Name(), err)
		}
		if err := b.eventStore.Append(ctx, e.GetRunID(), e.Name(), payload, nil); err != nil {
			// persistence failures never fail the run
			b.logger.Warn("Event persistence failed",
				logfields.RunID(e.GetRunID()),
				slog.String("event", e.Name()),
				logfields.Error(err))
		}
	}

	b.mu.RLock()
	hs := append([]Handler(nil), b.subscribers[e.Name()]...)
	hs = append(hs, b.subscribers["*"]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			errs = append(errs, err)
			if b.dlq != nil {
				b.dlq.Enqueue(FailedEvent{Event: e, Error: err, Timestamp: time.Now()})
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s delivery: %w", e.Name(), errors.Join(errs...))
	}
	return nil
}

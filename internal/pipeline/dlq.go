package pipeline

import (
	"sync"
	"time"
)

// FailedEvent wraps an event with its error and timestamp for DLQ storage.
type FailedEvent struct {
	Event     Event
	Error     error
	Timestamp time.Time
}

// DeadLetterQueue stores events whose delivery failed.
type DeadLetterQueue struct {
	mu     sync.RWMutex
	failed []FailedEvent
}

// NewDeadLetterQueue creates a new DLQ.
func NewDeadLetterQueue() *DeadLetterQueue {
	return &DeadLetterQueue{failed: []FailedEvent{}}
}

// Enqueue adds a failed event to the queue.
func (dlq *DeadLetterQueue) Enqueue(fe FailedEvent) {
	dlq.mu.Lock()
	dlq.failed = append(dlq.failed, fe)
	dlq.mu.Unlock()
}

// GetAll returns all failed events (for inspection/replay).
func (dlq *DeadLetterQueue) GetAll() []FailedEvent {
	dlq.mu.RLock()
	defer dlq.mu.RUnlock()
	result := make([]FailedEvent, len(dlq.failed))
	copy(result, dlq.failed)
	return result
}

// ForRun returns the failed events of one run.
func (dlq *DeadLetterQueue) ForRun(runID string) []FailedEvent {
	dlq.mu.RLock()
	defer dlq.mu.RUnlock()
	var out []FailedEvent
	for _, fe := range dlq.failed {
		if fe.Event.GetRunID() == runID {
			out = append(out, fe)
		}
	}
	return out
}

// Count returns the number of failed events in the queue.
func (dlq *DeadLetterQueue) Count() int {
	dlq.mu.RLock()
	defer dlq.mu.RUnlock()
	return len(dlq.failed)
}

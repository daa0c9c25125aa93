// Package queue buffers accepted chat events between the HTTP intake and the
// dispatch workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/metrics"
)

const defaultQueueCapacity = 100_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event to the queue. It returns ErrFull or ErrClosed
	// when the event was not accepted.
	Enqueue(ctx context.Context, e model.Event) error

	// Dequeue returns a channel that receives events until the queue is
	// closed and drained or ctx is done.
	Dequeue(ctx context.Context) <-chan model.Event

	// Len returns the current number of queued events.
	Len() int

	// Close stops intake. Buffered events remain available to Dequeue.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan model.Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan model.Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds an event to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events))
		return nil
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive events as they become available.
// Several consumers may each call Dequeue; every event is delivered once.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Event {
	out := make(chan model.Event)
	go func() {
		defer close(out)
		for {
			select {
			case e, ok := <-q.events:
				if !ok {
					return
				}
				metrics.UpdateQueueSize(len(q.events))
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Capacity returns the maximum number of buffered events.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Package dedupe tracks processed event IDs so redelivered events are applied at most once.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Deduper records seen event IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) (bool, error)

	// Seen reports whether id is recorded without recording it.
	Seen(ctx context.Context, id string) (bool, error)

	// Unrecord removes an ID so a redelivery is processed again.
	// Only used when an event was recorded but could not be processed.
	Unrecord(ctx context.Context, id string) error

	// Size reports the number of IDs held locally.
	Size() int64
}

type node struct {
	id         string
	recordedAt time.Time
	prev, next *node
}

func (n *node) reset() {
	n.id = ""
	n.recordedAt = time.Time{}
	n.prev, n.next = nil, nil
}

// inMemoryDeduper keeps IDs in insertion order. The oldest entry is evicted when
// maxSize is reached and entries older than retention count as unseen.
type inMemoryDeduper struct {
	mu        sync.Mutex
	seen      map[string]*node
	head      *node // newest
	tail      *node // oldest
	maxSize   int
	retention time.Duration
	now       func() time.Time
	size      atomic.Int64
	nodePool  sync.Pool
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize:   50_000,
		retention: 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*node)
	d.nodePool = sync.Pool{New: func() any { return &node{} }}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)

	if _, exists := d.seen[id]; exists {
		return true, nil
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.remove(d.tail)
	}

	n := d.nodePool.Get().(*node)
	n.id = id
	n.recordedAt = now
	n.next = d.head
	if d.head != nil {
		d.head.prev = n
	}
	d.head = n
	if d.tail == nil {
		d.tail = n
	}
	d.seen[id] = n
	d.size.Add(1)
	return false, nil
}

func (d *inMemoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.seen[id]
	if !ok {
		return false, nil
	}
	if d.retention > 0 && d.now().Sub(n.recordedAt) >= d.retention {
		return false, nil
	}
	return true, nil
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.seen[id]; ok {
		d.remove(n)
	}
	return nil
}

// expire drops entries past the retention window, oldest first.
// Must be called with d.mu held.
func (d *inMemoryDeduper) expire(now time.Time) {
	if d.retention <= 0 {
		return
	}
	for d.tail != nil && now.Sub(d.tail.recordedAt) >= d.retention {
		d.remove(d.tail)
	}
}

// remove unlinks n. Must be called with d.mu held.
func (d *inMemoryDeduper) remove(n *node) {
	if n == nil {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	delete(d.seen, n.id)
	n.reset()
	d.nodePool.Put(n)
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

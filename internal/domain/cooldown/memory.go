package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/okian/zen/pkg/logger"
)

type entryKey struct {
	subject string
	action  string
}

// MemoryTracker keeps entries in a map with lazy expiry on lookup and a
// periodic sweep of idle entries.
type MemoryTracker struct {
	mu            sync.Mutex
	entries       map[entryKey]time.Time
	now           func() time.Time
	sweepInterval time.Duration
	lastSweep     time.Time
	logger        logger.Logger
}

// NewMemoryTracker creates an in-process tracker.
func NewMemoryTracker(opts ...MemoryOption) *MemoryTracker {
	t := &MemoryTracker{
		entries:       make(map[entryKey]time.Time, 1024),
		now:           time.Now,
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logger.Get().Named("cooldown")
	}
	t.lastSweep = t.now()
	return t
}

// CheckAndArm arms the window for (subject, action) unless a live entry exists.
func (t *MemoryTracker) CheckAndArm(ctx context.Context, subject, action string, window time.Duration) (bool, error) {
	now := t.now()
	key := entryKey{subject: subject, action: action}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeSweep(ctx, now)

	if expiresAt, ok := t.entries[key]; ok {
		if now.Before(expiresAt) {
			return false, nil
		}
		delete(t.entries, key)
	}
	if window > 0 {
		t.entries[key] = now.Add(window)
	}
	return true, nil
}

// Disarm removes the entry for (subject, action).
func (t *MemoryTracker) Disarm(_ context.Context, subject, action string) error {
	t.mu.Lock()
	delete(t.entries, entryKey{subject: subject, action: action})
	t.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// maybeSweep removes expired entries at most once per sweep interval.
// Must be called with t.mu held.
func (t *MemoryTracker) maybeSweep(ctx context.Context, now time.Time) {
	if now.Sub(t.lastSweep) < t.sweepInterval {
		return
	}
	t.lastSweep = now
	removed := 0
	for k, expiresAt := range t.entries {
		if !now.Before(expiresAt) {
			delete(t.entries, k)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug(ctx, "swept expired cooldowns", logger.Int("removed", removed), logger.Int("live", len(t.entries)))
	}
}

package cooldown

import (
	"time"

	"github.com/okian/zen/pkg/logger"
)

// MemoryOption configures a MemoryTracker.
type MemoryOption func(*MemoryTracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(t *MemoryTracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithSweepInterval sets how often expired entries are purged.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(t *MemoryTracker) {
		if d > 0 {
			t.sweepInterval = d
		}
	}
}

// WithLogger sets the tracker logger.
func WithLogger(l logger.Logger) MemoryOption {
	return func(t *MemoryTracker) {
		t.logger = l
	}
}

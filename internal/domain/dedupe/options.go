package dedupe

import "time"

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize bounds the number of IDs kept. Values <= 0 disable the bound.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// WithRetention sets how long an ID suppresses redeliveries. Values <= 0 keep IDs until evicted by size.
func WithRetention(retention time.Duration) Option {
	return func(d *inMemoryDeduper) {
		d.retention = retention
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *inMemoryDeduper) {
		if now != nil {
			d.now = now
		}
	}
}

package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithLogRetention bounds the number of reputation log rows kept per server.
func WithLogRetention(rows int) Option {
	return func(s *MemoryStore) {
		if rows > 0 {
			s.logRetention = rows
		}
	}
}

package ledger

import (
	"time"

	"github.com/okian/zen/pkg/logger"
)

type settings struct {
	now    func() time.Time
	logger logger.Logger
}

// Option configures a ledger.
type Option func(*settings)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

func newSettings(name string, opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named(name)
	}
	return s
}

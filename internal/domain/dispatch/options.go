package dispatch

import (
	"time"

	"github.com/okian/zen/internal/domain/hashtag"
	"github.com/okian/zen/pkg/logger"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithEffectWorkers sets the number of goroutines running side effects.
func WithEffectWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.effectWorkers = n
		}
	}
}

// WithEffectBuffer sets how many side effects may wait before new ones are dropped.
func WithEffectBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.effectBuffer = n
		}
	}
}

// WithInlineEffects runs side effects synchronously inside Dispatch.
func WithInlineEffects() Option {
	return func(d *Dispatcher) {
		d.inlineEffects = true
	}
}

// WithEnforcer replaces the hashtag enforcer.
func WithEnforcer(e *hashtag.Enforcer) Option {
	return func(d *Dispatcher) {
		if e != nil {
			d.enforcer = e
		}
	}
}

// WithClock overrides the time source used for notices.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

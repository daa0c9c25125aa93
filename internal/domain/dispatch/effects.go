package dispatch

import (
	"context"
	"sync"

	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

// effect is a deferred sink call.
type effect struct {
	name string
	run  func(ctx context.Context) error
}

// effectsRunner executes side effects on a fixed set of goroutines fed by a
// bounded channel. Submit never blocks: when the buffer is full the effect is
// dropped and counted.
type effectsRunner struct {
	ch     chan effect
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	inline bool
	logger logger.Logger
}

func newEffectsRunner(workers, buffer int, inline bool, l logger.Logger) *effectsRunner {
	r := &effectsRunner{inline: inline, logger: l}
	if inline {
		return r
	}
	if workers < 1 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	r.ch = make(chan effect, buffer)
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.loop()
	}
	return r
}

func (r *effectsRunner) loop() {
	defer r.wg.Done()
	for e := range r.ch {
		r.execute(context.Background(), e)
	}
}

func (r *effectsRunner) execute(ctx context.Context, e effect) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordSinkFailure(e.name)
			r.logger.Error(ctx, "effect panicked", logger.String("effect", e.name), logger.Any("panic", rec))
		}
	}()
	if err := e.run(ctx); err != nil {
		metrics.RecordSinkFailure(e.name)
		r.logger.Warn(ctx, "effect failed", logger.String("effect", e.name), logger.Error(err))
	}
}

// submit queues e. It reports false when e was dropped.
func (r *effectsRunner) submit(ctx context.Context, e effect) bool {
	if r.inline {
		r.execute(ctx, e)
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.RecordEffectDropped()
		r.logger.Warn(ctx, "effect dropped", logger.String("effect", e.name), logger.Error(ErrEffectsClosed))
		return false
	}
	select {
	case r.ch <- e:
		return true
	default:
		metrics.RecordEffectDropped()
		r.logger.Warn(ctx, "effect dropped, buffer full", logger.String("effect", e.name))
		return false
	}
}

// close stops accepting effects and waits for queued ones to finish or ctx to end.
func (r *effectsRunner) close(ctx context.Context) error {
	if r.inline {
		return nil
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

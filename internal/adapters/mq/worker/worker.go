package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/okian/zen/internal/domain/dispatch"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4
	defaultRetries          = 3
	defaultBackoff          = 50 * time.Millisecond
	poolShutdownTimeout     = 30 * time.Second
)

// Dispatcher handles one event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *model.Event) (dispatch.Report, error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Event
}

// Worker processes events from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current event.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	dispatcher Dispatcher
	name       string
	retries    uint64
	backoff    time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, dispatcher Dispatcher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		dispatcher: dispatcher,
		name:       "worker",
		retries:    defaultRetries,
		backoff:    defaultBackoff,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, ev); err != nil {
				w.logger.Error(ctx, "event dropped",
					logger.String("event_id", ev.ID),
					logger.String("kind", string(ev.Kind)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// processEvent dispatches ev, redelivering it while the dispatcher reports a
// transient policy or persistence failure.
func (w *InMemoryWorker) processEvent(ctx context.Context, ev model.Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	attempt := 0
	backoff := retry.WithMaxRetries(w.retries, retry.NewExponential(w.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		_, err := w.dispatcher.Dispatch(ctx, &ev)
		if err == nil {
			return nil
		}
		if transient(err) {
			w.logger.Debug(ctx, "redelivering event",
				logger.String("event_id", ev.ID),
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "dispatch_error")
		return fmt.Errorf("dispatch %s after %d attempts: %w", ev.ID, attempt, err)
	}
	return nil
}

func transient(err error) bool {
	return errors.Is(err, dispatch.ErrPersistenceFailure) || errors.Is(err, dispatch.ErrPolicyUnavailable)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers reading queue. A non-positive count
// defaults to four per CPU.
func NewPool(workerCount int, queue Queue, dispatcher Dispatcher, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, dispatcher, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	for _, w := range p.workers {
		<-w.done
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			metrics.UpdateWorkerCount(0)
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}

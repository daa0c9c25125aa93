// Package service assembles the pipeline from configuration: backends, the
// dispatcher, the event queue and its workers, and the HTTP surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/okian/zen/internal/adapters/http/api"
	"github.com/okian/zen/internal/adapters/http/swagger"
	eventqueue "github.com/okian/zen/internal/adapters/mq/queue"
	workerpool "github.com/okian/zen/internal/adapters/mq/worker"
	"github.com/okian/zen/internal/adapters/policy"
	"github.com/okian/zen/internal/adapters/postgres"
	"github.com/okian/zen/internal/adapters/redisstore"
	"github.com/okian/zen/internal/adapters/repository"
	"github.com/okian/zen/internal/adapters/sink"
	"github.com/okian/zen/internal/config"
	"github.com/okian/zen/internal/domain/cooldown"
	"github.com/okian/zen/internal/domain/dedupe"
	"github.com/okian/zen/internal/domain/dispatch"
	"github.com/okian/zen/internal/domain/hashtag"
	"github.com/okian/zen/internal/domain/ledger"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// Store is the ledger persistence used by both the dispatcher and the API.
type Store interface {
	ledger.Store
	ledger.Board
}

// Service owns every pipeline component and their lifecycle.
type Service struct {
	mu      sync.RWMutex
	cfg     *config.Config
	started bool

	store      Store
	memStore   *repository.MemoryStore
	processed  dedupe.Deduper
	tracker    cooldown.Tracker
	policies   *policy.Cached
	sink       dispatch.Sink
	dispatcher *dispatch.Dispatcher
	queue      *eventqueue.InMemoryQueue
	pool       *workerpool.Pool

	pg  *pgxpool.Pool
	rdb *redis.Client

	sinkOverride dispatch.Sink
	logger       logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSink replaces the configured action sink.
func WithSink(sk dispatch.Sink) Option {
	return func(s *Service) {
		s.sinkOverride = sk
	}
}

// New constructs a Service from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects the configured backends and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.logger.Info(ctx, "starting zen service...")

	if err := s.connect(ctx); err != nil {
		s.closeConnections()
		return err
	}

	template, err := s.cfg.Policy.Template()
	if err != nil {
		s.closeConnections()
		return err
	}

	src, err := s.buildPolicySource(template)
	if err != nil {
		s.closeConnections()
		return err
	}
	s.store = s.buildStore(ctx)
	s.processed = s.buildDeduper()
	s.tracker = s.buildTracker()
	s.sink = s.buildSink()
	s.policies = policy.NewCached(src, s.cfg.Policy.CacheSize, s.cfg.Policy.CacheTTL,
		policy.WithName(s.cfg.Policy.Source),
		policy.WithLogger(s.logger.Named("policy")),
	)

	rep := ledger.NewReputationLedger(s.store, s.tracker, ledger.WithLogger(s.logger.Named("reputation")))
	xp := ledger.NewExperienceLedger(s.store, s.tracker, ledger.WithLogger(s.logger.Named("experience")))
	s.dispatcher = dispatch.New(s.policies, s.processed, rep, xp, s.sink,
		dispatch.WithLogger(s.logger.Named("dispatch")),
		dispatch.WithEnforcer(hashtag.NewEnforcer(hashtag.WithLogger(s.logger.Named("hashtag")))),
		dispatch.WithEffectWorkers(s.cfg.Effects.Workers),
		dispatch.WithEffectBuffer(s.cfg.Effects.Buffer),
	)

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.Queue.Size))
	s.pool = workerpool.NewPool(s.cfg.Workers.Count, s.queue, s.dispatcher,
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithRetry(s.cfg.Workers.Retries, s.cfg.Workers.RetryBackoff),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "zen service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.cfg.Queue.Size),
		logger.String("store", s.cfg.Store.Backend),
		logger.String("dedupe", s.cfg.Dedupe.Backend),
		logger.String("cooldown", s.cfg.Cooldown.Backend),
		logger.String("policy", s.cfg.Policy.Source),
		logger.String("sink", s.cfg.Sink.Backend),
	)
	return nil
}

// connect opens the Postgres pool and the Redis client the config asks for.
func (s *Service) connect(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.UsesPostgres() {
		g.Go(func() error {
			pool, err := postgres.NewPool(gctx, postgres.PoolConfig{
				DSN:             s.cfg.Postgres.DSN,
				MaxConns:        s.cfg.Postgres.MaxConns,
				MinConns:        s.cfg.Postgres.MinConns,
				MaxConnLifetime: s.cfg.Postgres.MaxConnLifetime,
				MaxConnIdleTime: s.cfg.Postgres.MaxConnIdleTime,
			})
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			s.pg = pool
			if s.cfg.Postgres.Migrate {
				n, err := postgres.Migrate(gctx, pool)
				if err != nil {
					return fmt.Errorf("migrate postgres: %w", err)
				}
				s.logger.Info(gctx, "postgres migrations applied", logger.Int("count", n))
			}
			return nil
		})
	}
	if s.cfg.UsesRedis() {
		g.Go(func() error {
			rdb, err := redisstore.Connect(gctx, s.cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}
			s.rdb = rdb
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) buildStore(ctx context.Context) Store {
	if s.cfg.Store.Backend == config.BackendPostgres {
		return postgres.NewStore(s.pg)
	}
	s.memStore = repository.NewMemoryStore(ctx, repository.WithLogRetention(s.cfg.Store.LogRetention))
	return s.memStore
}

func (s *Service) buildDeduper() dedupe.Deduper {
	if s.cfg.Dedupe.Backend == config.BackendRedis {
		return redisstore.NewDeduper(s.rdb, s.cfg.Redis.KeyPrefix, s.cfg.Dedupe.Retention)
	}
	return dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.cfg.Dedupe.Size),
		dedupe.WithRetention(s.cfg.Dedupe.Retention),
	)
}

func (s *Service) buildTracker() cooldown.Tracker {
	if s.cfg.Cooldown.Backend == config.BackendRedis {
		return redisstore.NewTracker(s.rdb, s.cfg.Redis.KeyPrefix)
	}
	return cooldown.NewMemoryTracker(
		cooldown.WithSweepInterval(s.cfg.Cooldown.SweepInterval),
		cooldown.WithLogger(s.logger.Named("cooldown")),
	)
}

func (s *Service) buildSink() dispatch.Sink {
	switch {
	case s.sinkOverride != nil:
		return s.sinkOverride
	case s.cfg.Sink.Backend == config.BackendRedis:
		return sink.NewRedisSink(s.rdb, s.cfg.Redis.ActionsChannel)
	default:
		return sink.NewLogSink(s.logger.Named("sink"))
	}
}

func (s *Service) buildPolicySource(template *model.Policy) (policy.Source, error) {
	if s.cfg.Policy.Source == config.BackendPostgres {
		return postgres.NewPolicyStore(s.pg, template), nil
	}
	overrides, err := s.cfg.Policy.Overrides()
	if err != nil {
		return nil, err
	}
	return policy.NewStatic(template, overrides), nil
}

// Stop drains the queue, flushes pending side effects and closes backends.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping zen service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
	}
	if s.memStore != nil {
		_ = s.memStore.Close()
	}
	s.closeConnections()

	s.started = false
	s.logger.Info(ctx, "zen service stopped")
	return errors.Join(errs...)
}

func (s *Service) closeConnections() {
	if s.rdb != nil {
		_ = s.rdb.Close()
		s.rdb = nil
	}
	if s.pg != nil {
		s.pg.Close()
		s.pg = nil
	}
}

// Register attaches the API and documentation routes. Start must have succeeded.
func (s *Service) Register(ctx context.Context, mux *http.ServeMux) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}
	api.NewServer(s, s.store, s.policies, s,
		api.WithMaxLimit(s.cfg.Server.MaxLeaderboardLimit),
		api.WithLogger(s.logger.Named("api")),
	).Register(ctx, mux)
	swagger.Register(ctx, mux)
	return nil
}

// Seen reports whether the event was already processed.
func (s *Service) Seen(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return false, ErrNotStarted
	}
	return s.processed.Seen(ctx, eventID)
}

// Enqueue submits an event for asynchronous dispatch.
func (s *Service) Enqueue(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}
	if err := s.queue.Enqueue(ctx, e); err != nil {
		s.logger.Debug(ctx, "event rejected by queue",
			logger.String("event_id", e.ID),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// Dispatcher returns the running dispatcher, or nil before Start.
func (s *Service) Dispatcher() *dispatch.Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatcher
}

// Store returns the ledger store, or nil before Start.
func (s *Service) Store() Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// GetStats returns service statistics for monitoring and refreshes the
// corresponding gauges.
func (s *Service) GetStats(_ context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":  s.started,
		"backends": s.backends(),
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len()
	processed := s.processed.Size()
	stats["workers"] = s.pool.Size()
	stats["queue_length"] = queueLen
	stats["queue_capacity"] = s.queue.Capacity()
	stats["processed_set_size"] = processed
	stats["policy_cache_size"] = s.policies.Len()
	stats["dispatch"] = s.dispatcher.Stats()
	if s.memStore != nil {
		rep, xp := s.memStore.Counts()
		stats["reputation_members"] = rep
		stats["experience_members"] = xp
	}

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateProcessedSetSize(processed)
	metrics.UpdateWorkerCount(s.pool.Size())
	return stats
}

func (s *Service) backends() map[string]string {
	return map[string]string{
		"store":    s.cfg.Store.Backend,
		"dedupe":   s.cfg.Dedupe.Backend,
		"cooldown": s.cfg.Cooldown.Backend,
		"policy":   s.cfg.Policy.Source,
		"sink":     s.cfg.Sink.Backend,
	}
}

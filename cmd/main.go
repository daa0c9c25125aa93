package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	app "github.com/okian/zen/internal/app"
	"github.com/okian/zen/internal/config"
	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

const (
	readHeaderTimeout      = 5 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("zen: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.InitWithFormat(cfg.Log.Format); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
		metrics.WithHistogramBuckets(cfg.Metrics.Buckets),
		metrics.WithConstLabels(cfg.Metrics.Labels),
	)

	log := logger.Get()
	if err := logger.SetLevelString(cfg.Log.Level); err != nil {
		log.Warn(ctx, "invalid log level; falling back to info", logger.String("level", cfg.Log.Level), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(cfg, app.WithLogger(log.Named("service")))
	if err := svc.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	if err := svc.Register(ctx, mux); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop intake first so the workers can drain what was accepted.
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := svc.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		log.Info(context.Background(), "server stopped")
		return errors.Join(errs...)
	})

	return g.Wait()
}

// startSystemMetricsUpdater samples runtime gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes queue and processed-set gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.GetStats(ctx)
		}
	}
}

package feedsim

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
)

const (
	directoryPermission = 0o750
	drainPollInterval   = 250 * time.Millisecond
	submitRetries       = 5
	submitBackoff       = 20 * time.Millisecond
	percentMultiplier   = 100
)

// Run executes a complete simulation: generate, submit, wait, verify.
func Run(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.Get().Named("feedsim")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting feed simulation",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("servers", cfg.Servers),
		logger.Int("members", cfg.Members),
		logger.Int("events", cfg.NumEvents),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
	)

	client := NewClient(cfg.BaseURL, cfg.Timeout, submitRetries, submitBackoff)
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(cfg)
	events := gen.Generate(cfg.NumEvents)
	stats.EventsGenerated = len(events)

	if err := submitEvents(ctx, cfg, client, events, stats); err != nil {
		return fmt.Errorf("event submission failed: %w", err)
	}

	if err := waitForDrain(ctx, client, cfg.Settle); err != nil {
		log.Warn(ctx, "queue did not drain in time", logger.Error(err))
	}

	if err := verifyServers(ctx, cfg, client, gen.servers, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	if cfg.OutputFile != "" {
		if err := saveEvents(cfg.OutputFile, events); err != nil {
			log.Warn(ctx, "failed to save events to file", logger.Error(err))
		} else {
			log.Info(ctx, "events saved to file", logger.String("file", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return nil
}

// submitEvents posts events with at most cfg.Workers requests in flight.
// Individual failures are counted, not returned.
func submitEvents(ctx context.Context, cfg *Config, client *Client, events []model.Event, stats *Stats) error {
	log := logger.Get().Named("feedsim")
	var submitted, accepted, duplicate, throttled, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range events {
		ev := &events[i]
		g.Go(func() error {
			res, err := client.Submit(gctx, ev)
			submitted.Add(1)
			switch res {
			case ResultAccepted:
				accepted.Add(1)
			case ResultDuplicate:
				duplicate.Add(1)
			case ResultThrottled:
				throttled.Add(1)
			default:
				failed.Add(1)
			}
			if err != nil && cfg.Verbose {
				log.Warn(gctx, "event submission failed", logger.String("event_id", ev.ID), logger.Error(err))
			}
			return gctx.Err()
		})
	}
	err := g.Wait()

	stats.EventsSubmitted = int(submitted.Load())
	stats.EventsAccepted = int(accepted.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsThrottled = int(throttled.Load())
	stats.EventsFailed = int(failed.Load())
	log.Info(ctx, "event submission completed",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("throttled", stats.EventsThrottled),
		logger.Int("failed", stats.EventsFailed),
	)
	return err
}

// waitForDrain polls /stats until the service queue is empty.
func waitForDrain(ctx context.Context, client *Client, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		stats, err := client.Stats(ctx)
		if err == nil {
			if n, ok := stats["queue_length"].(float64); ok && n == 0 {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func saveEvents(filename string, events []model.Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	return os.WriteFile(filename, data, 0o600)
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var acceptRate, eventsPerSecond float64
	if stats.EventsSubmitted > 0 {
		acceptRate = float64(stats.EventsAccepted) / float64(stats.EventsSubmitted) * percentMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("events_generated", stats.EventsGenerated),
		logger.Int("events_submitted", stats.EventsSubmitted),
		logger.Int("events_accepted", stats.EventsAccepted),
		logger.Int("events_duplicate", stats.EventsDuplicate),
		logger.Int("events_throttled", stats.EventsThrottled),
		logger.Int("events_failed", stats.EventsFailed),
		logger.Int("leaderboards_read", stats.LeaderboardsRead),
		logger.Duration("duration", stats.Duration),
		logger.Float64("accept_rate", acceptRate),
		logger.Float64("events_per_second", eventsPerSecond),
	)
}

package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "ZEN_"
	envFile   = "ZEN_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if ZEN_CONFIG is set
//  3. env (prefix ZEN_, "__" separates nested keys)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// ZEN_QUEUE__SIZE -> queue.size, ZEN_POSTGRES__MAX_CONNS -> postgres.max_conns.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		if s == envFile {
			return ""
		}
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and backend names.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...))
	}

	if c.Server.Addr == "" {
		return invalid("server.addr", "must not be empty")
	}
	if c.Server.MaxLeaderboardLimit < 1 {
		return invalid("server.max_leaderboard_limit", "must be positive, got %d", c.Server.MaxLeaderboardLimit)
	}
	if c.Queue.Size < 1 {
		return invalid("queue.size", "must be positive, got %d", c.Queue.Size)
	}
	if c.Workers.Count < 1 {
		return invalid("workers.count", "must be positive, got %d", c.Workers.Count)
	}
	if c.Effects.Workers < 1 {
		return invalid("effects.workers", "must be positive, got %d", c.Effects.Workers)
	}
	if c.Effects.Buffer < 1 {
		return invalid("effects.buffer", "must be positive, got %d", c.Effects.Buffer)
	}
	if c.Dedupe.Size < 1 {
		return invalid("dedupe.size", "must be positive, got %d", c.Dedupe.Size)
	}
	if c.Dedupe.Retention < 0 {
		return invalid("dedupe.retention", "must not be negative")
	}

	backends := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"dedupe.backend", c.Dedupe.Backend, []string{BackendMemory, BackendRedis}},
		{"cooldown.backend", c.Cooldown.Backend, []string{BackendMemory, BackendRedis}},
		{"store.backend", c.Store.Backend, []string{BackendMemory, BackendPostgres}},
		{"policy.source", c.Policy.Source, []string{BackendStatic, BackendPostgres}},
		{"sink.backend", c.Sink.Backend, []string{BackendLog, BackendRedis}},
	}
	for _, b := range backends {
		if !slices.Contains(b.allowed, b.value) {
			return invalid(b.field, "%q is not one of %s", b.value, strings.Join(b.allowed, ", "))
		}
	}

	if c.UsesPostgres() && c.Postgres.DSN == "" {
		return invalid("postgres.dsn", "required by the postgres backend")
	}
	if c.UsesRedis() && c.Redis.URL == "" {
		return invalid("redis.url", "required by the redis backend")
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return invalid("postgres.min_conns", "exceeds max_conns")
	}
	if c.Policy.CacheSize < 0 {
		return invalid("policy.cache_size", "must not be negative")
	}
	if c.Metrics.Namespace == "" {
		return invalid("metrics.namespace", "must not be empty")
	}
	for i := 1; i < len(c.Metrics.Buckets); i++ {
		if c.Metrics.Buckets[i] <= c.Metrics.Buckets[i-1] {
			return invalid("metrics.buckets", "must be strictly increasing")
		}
	}

	if _, err := c.Policy.Overrides(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// UsesPostgres reports whether any component is backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.Store.Backend == BackendPostgres || c.Policy.Source == BackendPostgres
}

// UsesRedis reports whether any component is backed by Redis.
func (c *Config) UsesRedis() bool {
	return c.Dedupe.Backend == BackendRedis || c.Cooldown.Backend == BackendRedis || c.Sink.Backend == BackendRedis
}

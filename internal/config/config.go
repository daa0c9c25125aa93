// Package config defines service configuration and its layered loading.
//
// Values come from New defaults, then an optional YAML file named by
// ZEN_CONFIG, then ZEN_ environment variables. Nested keys use a double
// underscore in env names: ZEN_POSTGRES__DSN sets postgres.dsn.
package config

import (
	"context"
	"runtime"
	"time"

	"github.com/okian/zen/internal/domain/model"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendStatic   = "static"
	BackendLog      = "log"
)

// Config contains process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Queue    QueueConfig    `koanf:"queue"`
	Workers  WorkersConfig  `koanf:"workers"`
	Dedupe   DedupeConfig   `koanf:"dedupe"`
	Cooldown CooldownConfig `koanf:"cooldown"`
	Store    StoreConfig    `koanf:"store"`
	Postgres PostgresConfig `koanf:"postgres"`
	Redis    RedisConfig    `koanf:"redis"`
	Policy   PolicyConfig   `koanf:"policy"`
	Effects  EffectsConfig  `koanf:"effects"`
	Sink     SinkConfig     `koanf:"sink"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr                string        `koanf:"addr"`
	ReadTimeout         time.Duration `koanf:"read_timeout"`
	WriteTimeout        time.Duration `koanf:"write_timeout"`
	IdleTimeout         time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout     time.Duration `koanf:"shutdown_timeout"`
	MaxLeaderboardLimit int           `koanf:"max_leaderboard_limit"`
}

// LogConfig controls verbosity and output format.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// QueueConfig bounds the in-memory event queue.
type QueueConfig struct {
	Size int `koanf:"size"`
}

// WorkersConfig sets the number of dispatch workers and how often a
// transiently failed event is redelivered.
type WorkersConfig struct {
	Count        int           `koanf:"count"`
	Retries      uint64        `koanf:"retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// DedupeConfig configures the processed-event set.
type DedupeConfig struct {
	Backend   string        `koanf:"backend"`
	Size      int           `koanf:"size"`
	Retention time.Duration `koanf:"retention"`
}

// CooldownConfig selects the cooldown tracker backend.
type CooldownConfig struct {
	Backend       string        `koanf:"backend"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// StoreConfig selects the ledger persistence backend.
type StoreConfig struct {
	Backend      string `koanf:"backend"`
	LogRetention int    `koanf:"log_retention"`
}

// PostgresConfig configures the pgx pool.
type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
	Migrate         bool          `koanf:"migrate"`
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	URL            string `koanf:"url"`
	KeyPrefix      string `koanf:"key_prefix"`
	ActionsChannel string `koanf:"actions_channel"`
}

// EffectsConfig sizes the asynchronous side-effect runner.
type EffectsConfig struct {
	Workers int `koanf:"workers"`
	Buffer  int `koanf:"buffer"`
}

// SinkConfig selects where gateway actions go.
type SinkConfig struct {
	Backend string `koanf:"backend"`
}

// MetricsConfig names the Prometheus collectors. Empty buckets keep the
// built-in latency buckets.
type MetricsConfig struct {
	Namespace string            `koanf:"namespace"`
	Subsystem string            `koanf:"subsystem"`
	Buckets   []float64         `koanf:"buckets"`
	Labels    map[string]string `koanf:"labels"`
}

// New returns the default configuration.
func New(_ context.Context) *Config {
	base := model.DefaultPolicy("")
	repCooldown, xpCooldown := base.RepCooldown, base.XPCooldown
	return &Config{
		Server: ServerConfig{
			Addr:                ":9080",
			ReadTimeout:         5 * time.Second,
			WriteTimeout:        10 * time.Second,
			IdleTimeout:         60 * time.Second,
			ShutdownTimeout:     15 * time.Second,
			MaxLeaderboardLimit: 100,
		},
		Log:      LogConfig{Level: "info", Format: "text"},
		Queue:    QueueConfig{Size: 100_000},
		Workers:  WorkersConfig{Count: runtime.NumCPU() * 4, Retries: 3, RetryBackoff: 50 * time.Millisecond},
		Dedupe:   DedupeConfig{Backend: BackendMemory, Size: 500_000, Retention: 24 * time.Hour},
		Cooldown: CooldownConfig{Backend: BackendMemory, SweepInterval: time.Minute},
		Store:    StoreConfig{Backend: BackendMemory, LogRetention: 10_000},
		Postgres: PostgresConfig{MaxConns: 20, MinConns: 2, MaxConnLifetime: time.Hour, MaxConnIdleTime: 10 * time.Minute, Migrate: true},
		Redis:    RedisConfig{URL: "redis://localhost:6379/0", KeyPrefix: "zen", ActionsChannel: "zen:actions"},
		Policy: PolicyConfig{
			Source:    BackendStatic,
			CacheSize: 10_000,
			CacheTTL:  time.Minute,
			Defaults: PolicySettings{
				Features:    map[string]bool{},
				RepCooldown: &repCooldown,
				XPCooldown:  &xpCooldown,
				XP:          &base.XP,
				Levels:      &base.Levels,
			},
			Servers: map[string]PolicySettings{},
		},
		Effects: EffectsConfig{Workers: 4, Buffer: 1024},
		Sink:    SinkConfig{Backend: BackendLog},
		Metrics: MetricsConfig{Namespace: "zen", Subsystem: "pipeline", Labels: map[string]string{}},
	}
}

package feedsim

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid simulator config")

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL       string        // Base URL of the service
	Servers       int           // Number of simulated chat servers
	Members       int           // Members per server
	NumEvents     int           // Number of events to generate
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	Settle        time.Duration // Upper bound on waiting for the queue to drain
	Seed          uint64        // Seed for the event generator
	DuplicateRate float64       // Share of events that are redeliveries of earlier ones
	BotRate       float64       // Share of messages authored by bots
	TopN          int           // Number of leaderboard entries to fetch
	OutputFile    string        // Output file for generated events
	Verbose       bool          // Enable verbose logging
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Servers < 1:
		return fmt.Errorf("%w: servers must be positive", ErrInvalidConfig)
	case c.Members < 2:
		return fmt.Errorf("%w: at least two members are needed per server", ErrInvalidConfig)
	case c.NumEvents < 1:
		return fmt.Errorf("%w: events must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.DuplicateRate < 0 || c.DuplicateRate >= 1:
		return fmt.Errorf("%w: duplicate rate must be in [0, 1)", ErrInvalidConfig)
	case c.BotRate < 0 || c.BotRate >= 1:
		return fmt.Errorf("%w: bot rate must be in [0, 1)", ErrInvalidConfig)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated  int
	EventsSubmitted  int
	EventsAccepted   int
	EventsDuplicate  int
	EventsThrottled  int
	EventsFailed     int
	LeaderboardsRead int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

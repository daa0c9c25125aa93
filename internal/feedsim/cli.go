// Package feedsim drives a running service with a simulated chat feed and
// checks the resulting leaderboards for consistency.
package feedsim

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/okian/zen/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initializes the logger and, when logFile is set, mirrors the
// standard log package to it.
func SetupLogging(logFile string, verbose bool) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	if logFile == "" {
		return nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("log_file", logFile))
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`zen feed simulator
==================

Generates a realistic stream of chat events (messages, thank-you replies,
mentions, upvote reactions, tagged and untagged questions, edits, deletes and
redeliveries), posts it to a running service and checks the leaderboards.

Usage:
  go run ./cmd/feed-sim [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -servers int         Number of simulated servers (default 3)
  -members int         Members per server (default 50)
  -events int          Number of events to submit (default 10000)
  -workers int         Concurrent submitters (default CPU cores * 2)
  -seed uint           Generator seed (default 1)
  -duplicates float    Share of redelivered events (default 0.05)
  -bots float          Share of bot-authored messages (default 0.02)
  -top int             Leaderboard entries to verify (default 20)
  -timeout duration    HTTP request timeout (default 30s)
  -settle duration     Maximum wait for the queue to drain (default 1m)
  -output string       Write the generated events to this JSON file
  -log string          Mirror log output to this file
  -verbose             Enable verbose logging
  -help                Show this help message

The service must enable the rep, xp and hashtag features and list the
"questions" channel as moderated for every simulated server to exercise all
paths, for example with ZEN_POLICY__DEFAULTS__FEATURES__REP=true.
`)
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/zen/internal/feedsim"
)

// Default configuration constants.
const (
	defaultNumEvents   = 10000
	defaultServers     = 3
	defaultMembers     = 50
	defaultTopN        = 20
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultSettle      = time.Minute
	defaultRunTimeout  = 10 * time.Minute
	defaultDuplicates  = 0.05
	defaultBotMessages = 0.02
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		servers    = flag.Int("servers", defaultServers, "Number of simulated servers")
		members    = flag.Int("members", defaultMembers, "Members per server")
		numEvents  = flag.Int("events", defaultNumEvents, "Number of events to submit")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		seed       = flag.Uint64("seed", 1, "Generator seed")
		duplicates = flag.Float64("duplicates", defaultDuplicates, "Share of redelivered events")
		bots       = flag.Float64("bots", defaultBotMessages, "Share of bot-authored messages")
		topN       = flag.Int("top", defaultTopN, "Leaderboard entries to verify")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettle, "Maximum wait for the queue to drain")
		outputFile = flag.String("output", "", "Write the generated events to this JSON file")
		logFile    = flag.String("log", "", "Mirror log output to this file")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		feedsim.ShowHelp()
		return
	}

	if err := feedsim.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &feedsim.Config{
		BaseURL:       *baseURL,
		Servers:       *servers,
		Members:       *members,
		NumEvents:     *numEvents,
		Workers:       *workers,
		Timeout:       *timeout,
		Settle:        *settle,
		Seed:          *seed,
		DuplicateRate: *duplicates,
		BotRate:       *bots,
		TopN:          *topN,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}

	if err := feedsim.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

package feedsim

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/zen/pkg/logger"
)

// ErrInconsistent is returned when the read side contradicts itself.
var ErrInconsistent = errors.New("inconsistent leaderboard")

// VerifyLeaderboard checks that entries are ordered by value and densely
// ranked: the first entry has rank 1, equal values share a rank and each
// lower value takes the next rank.
func VerifyLeaderboard(b *Leaderboard) error {
	for i, e := range b.Entries {
		if i == 0 {
			if e.Rank != 1 {
				return fmt.Errorf("%w: %s/%s starts at rank %d", ErrInconsistent, b.ServerID, b.Ledger, e.Rank)
			}
			continue
		}
		prev := b.Entries[i-1]
		switch {
		case e.Value > prev.Value:
			return fmt.Errorf("%w: %s/%s entry %d (%d) above entry %d (%d)",
				ErrInconsistent, b.ServerID, b.Ledger, i, e.Value, i-1, prev.Value)
		case e.Value == prev.Value && e.Rank != prev.Rank:
			return fmt.Errorf("%w: %s/%s tied values at ranks %d and %d",
				ErrInconsistent, b.ServerID, b.Ledger, prev.Rank, e.Rank)
		case e.Value < prev.Value && e.Rank != prev.Rank+1:
			return fmt.Errorf("%w: %s/%s rank jumps from %d to %d",
				ErrInconsistent, b.ServerID, b.Ledger, prev.Rank, e.Rank)
		}
	}
	return nil
}

// verifyLeader compares the leaderboard head with the member's profile.
func verifyLeader(ctx context.Context, client *Client, b *Leaderboard) error {
	if len(b.Entries) == 0 {
		return nil
	}
	head := b.Entries[0]
	p, err := client.Profile(ctx, b.ServerID, head.UserID)
	if err != nil {
		return err
	}

	value, rank := p.Reputation.Score, p.Reputation.Rank
	if b.Ledger == "xp" {
		value, rank = p.Experience.XP, p.Experience.Rank
	}
	// the service keeps processing while we read, so only a lower value is wrong
	if value < head.Value || rank != 1 {
		return fmt.Errorf("%w: %s/%s leader %s shows value %d rank %d in profile, %d rank 1 on the board",
			ErrInconsistent, b.ServerID, b.Ledger, head.UserID, value, rank, head.Value)
	}
	return nil
}

// verifyServers reads and checks both leaderboards of every server.
func verifyServers(ctx context.Context, cfg *Config, client *Client, servers []string, stats *Stats) error {
	log := logger.Get().Named("feedsim")
	var errs []error
	for _, server := range servers {
		for _, ledger := range []string{"rep", "xp"} {
			b, err := client.Leaderboard(ctx, server, ledger, cfg.TopN)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			stats.LeaderboardsRead++
			if err := VerifyLeaderboard(b); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := verifyLeader(ctx, client, b); err != nil {
				errs = append(errs, err)
				continue
			}
			displayLeaderboard(ctx, log, b, cfg.Verbose)
		}
	}
	return errors.Join(errs...)
}

func displayLeaderboard(ctx context.Context, log logger.Logger, b *Leaderboard, verbose bool) {
	n := len(b.Entries)
	if !verbose {
		n = min(n, 3)
	}
	for _, e := range b.Entries[:n] {
		log.Info(ctx, "leaderboard entry",
			logger.String("server", b.ServerID),
			logger.String("ledger", b.Ledger),
			logger.Int("rank", e.Rank),
			logger.String("user", e.UserID),
			logger.Int64("value", e.Value),
		)
	}
}

// Package ledger applies rate-limited reputation and experience grants.
//
// Every grant runs under a per-member lock: the cooldown check-and-arm and the
// store mutation it gates form one unit, and a failed mutation disarms the cooldown.
package ledger

import (
	"context"

	"github.com/okian/zen/internal/domain/model"
)

// Store is the persistence adapter used by the ledgers. Missing profiles are
// returned as zero-valued profiles for the requested key.
type Store interface {
	ReputationProfile(ctx context.Context, key model.MemberKey) (*model.ReputationProfile, error)
	ExperienceProfile(ctx context.Context, key model.MemberKey) (*model.ExperienceProfile, error)

	// ApplyReputation atomically adds grant.Amount to the receiver, stamps
	// the giver's LastGivenTo and appends grant to the log. It returns the new score.
	ApplyReputation(ctx context.Context, grant *model.ReputationGrant) (int64, error)

	// UpdateExperience loads the profile, applies fn and persists the result atomically.
	UpdateExperience(ctx context.Context, key model.MemberKey, fn func(p *model.ExperienceProfile) error) (*model.ExperienceProfile, error)
}

// Board is the read side exposed over HTTP.
type Board interface {
	TopReputation(ctx context.Context, serverID string, limit int) ([]model.LeaderboardEntry, error)
	TopExperience(ctx context.Context, serverID string, limit int) ([]model.LeaderboardEntry, error)
	ReputationRank(ctx context.Context, key model.MemberKey) (int, error)
	ExperienceRank(ctx context.Context, key model.MemberKey) (int, error)
	ReputationLog(ctx context.Context, serverID string, limit int) ([]model.ReputationGrant, error)
}

package ledger

import (
	"context"

	"github.com/okian/zen/internal/domain/cooldown"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

// ExperienceLedger grants experience and tracks level transitions.
type ExperienceLedger struct {
	store   Store
	tracker cooldown.Tracker
	locks   *keyLocks
	settings
}

// NewExperienceLedger creates an experience ledger.
func NewExperienceLedger(store Store, tracker cooldown.Tracker, opts ...Option) *ExperienceLedger {
	return &ExperienceLedger{
		store:    store,
		tracker:  tracker,
		locks:    newKeyLocks(),
		settings: newSettings("experience", opts),
	}
}

// Grant awards experience for one message of messageLength characters.
func (l *ExperienceLedger) Grant(ctx context.Context, p *model.Policy, key model.MemberKey, messageLength int) model.XPResult {
	res := model.XPResult{UserID: key.UserID}
	if !p.Enabled(model.FeatureExperience) {
		return l.reject(ctx, res, model.ReasonFeatureDisabled)
	}

	unlock := l.locks.lock(key.String())
	defer unlock()

	subject := cooldown.Subject(key.ServerID, key.UserID)
	allowed, err := l.tracker.CheckAndArm(ctx, subject, cooldown.ActionExperience, p.XPCooldown)
	if err != nil {
		res.Err = err
		return l.reject(ctx, res, model.ReasonPersistenceFailure)
	}
	metrics.RecordCooldownCheck(cooldown.ActionExperience, allowed)
	if !allowed {
		return l.reject(ctx, res, model.ReasonRateLimited)
	}

	gained := p.XP.Increment(messageLength)
	now := l.now()
	var oldLevel int
	profile, err := l.store.UpdateExperience(ctx, key, func(prof *model.ExperienceProfile) error {
		oldLevel = prof.Level
		prof.XP += gained
		if lvl := p.Levels.Level(prof.XP); lvl > prof.Level {
			prof.Level = lvl
		}
		prof.LastGain = now
		prof.Messages++
		return nil
	})
	if err != nil {
		if derr := l.tracker.Disarm(ctx, subject, cooldown.ActionExperience); derr != nil {
			l.logger.Error(ctx, "failed to disarm experience cooldown", logger.String("subject", subject), logger.Error(derr))
		}
		res.Err = err
		return l.reject(ctx, res, model.ReasonPersistenceFailure)
	}

	res.Applied = true
	res.Gained = gained
	res.NewXP = profile.XP
	res.OldLevel = oldLevel
	res.NewLevel = profile.Level
	res.LeveledUp = profile.Level > oldLevel
	res.Rewards = p.RewardsCrossed(model.LedgerExperience, int64(oldLevel), int64(profile.Level))

	metrics.RecordGrant(string(model.LedgerExperience), "applied")
	if res.LeveledUp {
		metrics.RecordLevelUp()
		l.logger.Info(ctx, "member leveled up",
			logger.String("server", key.ServerID), logger.String("user", key.UserID), logger.Int("level", res.NewLevel))
	}
	for range res.Rewards {
		metrics.RecordRewardReached(string(model.LedgerExperience))
	}
	return res
}

func (l *ExperienceLedger) reject(ctx context.Context, res model.XPResult, reason model.Reason) model.XPResult {
	res.Reason = reason
	metrics.RecordGrant(string(model.LedgerExperience), string(reason))
	if !reason.Expected() {
		l.logger.Error(ctx, "experience grant failed", logger.String("user", res.UserID), logger.Error(res.Err))
	}
	return res
}

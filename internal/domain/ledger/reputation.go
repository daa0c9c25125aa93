package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/okian/zen/internal/domain/cooldown"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

// RepRequest asks for one point of reputation from GiverID to ReceiverID.
type RepRequest struct {
	ServerID   string
	GiverID    string
	ReceiverID string
	Source     model.GrantSource
	ChannelID  string
	MessageID  string
}

// ReputationLedger grants reputation.
type ReputationLedger struct {
	store   Store
	tracker cooldown.Tracker
	locks   *keyLocks
	settings
}

// NewReputationLedger creates a reputation ledger.
func NewReputationLedger(store Store, tracker cooldown.Tracker, opts ...Option) *ReputationLedger {
	return &ReputationLedger{
		store:    store,
		tracker:  tracker,
		locks:    newKeyLocks(),
		settings: newSettings("reputation", opts),
	}
}

// Grant applies req under p. Self grants are rejected before any other check.
func (l *ReputationLedger) Grant(ctx context.Context, p *model.Policy, req RepRequest) model.RepResult {
	res := model.RepResult{GiverID: req.GiverID, ReceiverID: req.ReceiverID, Source: req.Source}

	switch {
	case req.GiverID == req.ReceiverID:
		return l.reject(ctx, res, model.ReasonSelfTarget)
	case !p.Enabled(model.FeatureReputation):
		return l.reject(ctx, res, model.ReasonFeatureDisabled)
	case req.ChannelID != "" && p.ExcludedRepChannels.Has(req.ChannelID):
		return l.reject(ctx, res, model.ReasonExcludedChannel)
	}

	giver := model.MemberKey{ServerID: req.ServerID, UserID: req.GiverID}
	receiver := model.MemberKey{ServerID: req.ServerID, UserID: req.ReceiverID}
	unlock := l.locks.lock(giver.String(), receiver.String())
	defer unlock()

	subject := cooldown.Subject(req.ServerID, req.GiverID, req.ReceiverID)
	allowed, err := l.tracker.CheckAndArm(ctx, subject, cooldown.ActionReputation, p.RepCooldown)
	if err != nil {
		res.Err = err
		return l.reject(ctx, res, model.ReasonPersistenceFailure)
	}
	metrics.RecordCooldownCheck(cooldown.ActionReputation, allowed)
	if !allowed {
		return l.reject(ctx, res, model.ReasonRateLimited)
	}

	grant := &model.ReputationGrant{
		ID:         uuid.New(),
		ServerID:   req.ServerID,
		GiverID:    req.GiverID,
		ReceiverID: req.ReceiverID,
		Source:     req.Source,
		ChannelID:  req.ChannelID,
		MessageID:  req.MessageID,
		Amount:     1,
		At:         l.now(),
	}
	start := time.Now()
	score, err := l.store.ApplyReputation(ctx, grant)
	if err != nil {
		if derr := l.tracker.Disarm(ctx, subject, cooldown.ActionReputation); derr != nil {
			l.logger.Error(ctx, "failed to disarm reputation cooldown", logger.String("subject", subject), logger.Error(derr))
		}
		res.Err = err
		return l.reject(ctx, res, model.ReasonPersistenceFailure)
	}

	res.Applied = true
	res.NewScore = score
	res.Rewards = p.RewardsCrossed(model.LedgerReputation, score-grant.Amount, score)
	metrics.RecordGrant(string(model.LedgerReputation), "applied")
	for range res.Rewards {
		metrics.RecordRewardReached(string(model.LedgerReputation))
	}
	l.logger.Debug(ctx, "reputation granted",
		logger.String("server", req.ServerID),
		logger.String("giver", req.GiverID),
		logger.String("receiver", req.ReceiverID),
		logger.String("source", string(req.Source)),
		logger.Int64("score", score),
		logger.Duration("took", time.Since(start)),
	)
	return res
}

func (l *ReputationLedger) reject(ctx context.Context, res model.RepResult, reason model.Reason) model.RepResult {
	res.Reason = reason
	metrics.RecordGrant(string(model.LedgerReputation), string(reason))
	if reason.Expected() {
		l.logger.Debug(ctx, "reputation grant rejected",
			logger.String("giver", res.GiverID), logger.String("receiver", res.ReceiverID), logger.String("reason", string(reason)))
		return res
	}
	l.logger.Error(ctx, "reputation grant failed",
		logger.String("giver", res.GiverID), logger.String("receiver", res.ReceiverID), logger.Error(res.Err))
	return res
}

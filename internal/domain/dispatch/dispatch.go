// Package dispatch routes normalized chat events to the hashtag enforcer and
// the reputation and experience ledgers.
//
// Each event ID is recorded in the processed set before any ledger is touched,
// so a redelivered event has no further effect. When policy lookup or a ledger
// write fails the ID is removed again and the feed may redeliver it. The stages
// that did complete (hashtag enforcement, the XP grant and each reputation
// grant) are recorded first, and the redelivery runs only the missing ones.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/okian/zen/internal/domain/dedupe"
	"github.com/okian/zen/internal/domain/hashtag"
	"github.com/okian/zen/internal/domain/ledger"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/internal/domain/trigger"
	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

// PolicySource returns the policy snapshot for a server.
type PolicySource interface {
	Policy(ctx context.Context, serverID string) (*model.Policy, error)
}

// Sink receives the message actions produced while handling events.
type Sink interface {
	hashtag.Actions
	NotifyGrant(ctx context.Context, n model.Notice) error
}

// Report describes what Dispatch did with one event.
type Report struct {
	EventID    string
	Kind       model.EventKind
	Duplicate  bool
	Ignored    bool
	Hashtag    hashtag.Decision
	Reputation []model.RepResult
	Experience *model.XPResult
	// Resumed lists the stages skipped because an earlier delivery completed them.
	Resumed []string
}

// Stats are cumulative dispatcher counters.
type Stats struct {
	Processed  int64 `json:"processed"`
	Duplicates int64 `json:"duplicates"`
	Ignored    int64 `json:"ignored"`
	Failed     int64 `json:"failed"`
	Grants     int64 `json:"grants"`
	LevelUps   int64 `json:"level_ups"`
	Rejections int64 `json:"hashtag_rejections"`
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	policies  PolicySource
	processed dedupe.Deduper
	rep       *ledger.ReputationLedger
	xp        *ledger.ExperienceLedger
	sink      Sink
	enforcer  *hashtag.Enforcer
	effects   *effectsRunner
	logger    logger.Logger
	now       func() time.Time

	effectWorkers int
	effectBuffer  int
	inlineEffects bool

	processedCount atomic.Int64
	duplicates     atomic.Int64
	ignored        atomic.Int64
	failed         atomic.Int64
	grants         atomic.Int64
	levelUps       atomic.Int64
	rejections     atomic.Int64
}

// New wires a dispatcher. Call Close to drain pending side effects.
func New(policies PolicySource, processed dedupe.Deduper, rep *ledger.ReputationLedger, xp *ledger.ExperienceLedger, sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		policies:      policies,
		processed:     processed,
		rep:           rep,
		xp:            xp,
		sink:          sink,
		now:           time.Now,
		effectWorkers: 4,
		effectBuffer:  1024,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("dispatch")
	}
	if d.enforcer == nil {
		d.enforcer = hashtag.NewEnforcer()
	}
	d.effects = newEffectsRunner(d.effectWorkers, d.effectBuffer, d.inlineEffects, d.logger.Named("effects"))
	return d
}

// Dispatch processes ev once. Routine rejections are reported in the Report;
// the returned error is non-nil only for invalid input or infrastructure
// failures, in which case the event was not marked processed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *model.Event) (Report, error) {
	start := time.Now()
	defer func() { metrics.RecordDispatchLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	if ev == nil {
		return Report{}, fmt.Errorf("%w: nil event", model.ErrInvalidEvent)
	}
	report := Report{EventID: ev.ID, Kind: ev.Kind}
	if err := ev.Validate(); err != nil {
		d.fail(ctx, ev, "invalid_event", err)
		return report, err
	}
	metrics.RecordEventReceived(string(ev.Kind))

	if ev.ActorIsBot() {
		report.Ignored = true
		d.ignored.Add(1)
		return report, nil
	}

	seen, err := d.processed.SeenAndRecord(ctx, ev.ID)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrProcessedSet, err)
		d.fail(ctx, ev, "processed_set", err)
		return report, err
	}
	if seen {
		report.Duplicate = true
		d.duplicates.Add(1)
		metrics.RecordEventDuplicate()
		return report, nil
	}
	metrics.UpdateProcessedSetSize(d.processed.Size())

	pr, err := d.loadProgress(ctx, ev.ID)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrProcessedSet, err)
		d.unrecord(ctx, ev)
		d.fail(ctx, ev, "processed_set", err)
		return report, err
	}

	p, err := d.policies.Policy(ctx, ev.ServerID)
	if err != nil {
		err = fmt.Errorf("%w: server %s: %w", ErrPolicyUnavailable, ev.ServerID, err)
		d.unrecord(ctx, ev)
		d.fail(ctx, ev, string(model.ReasonPolicyUnavailable), err)
		return report, err
	}

	switch ev.Kind {
	case model.KindMessageCreate:
		d.onMessage(ctx, p, ev, pr, &report)
	case model.KindReactionAdd:
		d.onReaction(ctx, p, ev, pr, &report)
	default:
		report.Ignored = true
	}
	report.Resumed = pr.skipped

	if err := persistenceErrors(&report); err != nil {
		if serr := d.saveProgress(ctx, pr); serr != nil {
			// Without the stage records a redelivery would repeat completed
			// stages, so the event stays processed.
			d.logger.Error(ctx, "failed to record completed stages, event will not be redelivered",
				logger.String("event_id", ev.ID), logger.Error(serr))
		} else {
			d.unrecord(ctx, ev)
		}
		d.fail(ctx, ev, string(model.ReasonPersistenceFailure), err)
		return report, err
	}
	d.clearProgress(ctx, pr)

	d.processedCount.Add(1)
	metrics.RecordEventProcessed(string(ev.Kind))
	return report, nil
}

func (d *Dispatcher) onMessage(ctx context.Context, p *model.Policy, ev *model.Event, pr *progress, report *Report) {
	if d.pending(ctx, pr, StageHashtag) {
		report.Hashtag = d.enforcer.Enforce(p, ev)
		if report.Hashtag.Verdict == model.VerdictRejected {
			d.rejections.Add(1)
			msg := *ev
			d.effects.submit(ctx, effect{name: "hashtag_reject", run: func(ctx context.Context) error {
				return d.enforcer.Apply(ctx, d.sink, p, &msg)
			}})
		}
		pr.done(StageHashtag)
	}

	if p.Enabled(model.FeatureExperience) && trigger.XPEligible(ev) && d.pending(ctx, pr, StageExperience) {
		key := model.MemberKey{ServerID: ev.ServerID, UserID: ev.AuthorID}
		res := d.xp.Grant(ctx, p, key, utf8.RuneCountInString(ev.Content))
		report.Experience = &res
		if res.Reason != model.ReasonPersistenceFailure {
			pr.done(StageExperience)
		}
		if res.Applied && res.LeveledUp {
			d.levelUps.Add(1)
			d.notify(ctx, model.Notice{
				Kind: model.NoticeLevelUp, ServerID: ev.ServerID, ChannelID: ev.ChannelID,
				UserID: ev.AuthorID, Value: res.NewXP, Level: res.NewLevel,
			})
		}
		d.notifyRewards(ctx, ev, ev.AuthorID, res.Rewards, res.NewXP)
	}

	if p.Enabled(model.FeatureReputation) {
		for _, c := range trigger.ReputationCandidates(ev, p) {
			d.grantReputation(ctx, p, ev, c, pr, report)
		}
	}
}

func (d *Dispatcher) onReaction(ctx context.Context, p *model.Policy, ev *model.Event, pr *progress, report *Report) {
	if !p.Enabled(model.FeatureReputation) {
		report.Ignored = true
		return
	}
	c, ok := trigger.ReactionCandidate(ev, p)
	if !ok {
		report.Ignored = true
		return
	}
	d.grantReputation(ctx, p, ev, c, pr, report)
}

func (d *Dispatcher) grantReputation(ctx context.Context, p *model.Policy, ev *model.Event, c trigger.Candidate, pr *progress, report *Report) {
	stage := StageReputation(c.ReceiverID)
	if !d.pending(ctx, pr, stage) {
		return
	}
	res := d.rep.Grant(ctx, p, ledger.RepRequest{
		ServerID:   ev.ServerID,
		GiverID:    c.GiverID,
		ReceiverID: c.ReceiverID,
		Source:     c.Source,
		ChannelID:  ev.ChannelID,
		MessageID:  ev.MessageID,
	})
	report.Reputation = append(report.Reputation, res)
	if res.Reason != model.ReasonPersistenceFailure {
		pr.done(stage)
	}
	if !res.Applied {
		return
	}
	d.grants.Add(1)
	d.notify(ctx, model.Notice{
		Kind: model.NoticeReputation, ServerID: ev.ServerID, ChannelID: ev.ChannelID,
		UserID: c.ReceiverID, ActorID: c.GiverID, Value: res.NewScore,
	})
	d.notifyRewards(ctx, ev, c.ReceiverID, res.Rewards, res.NewScore)
}

func (d *Dispatcher) notifyRewards(ctx context.Context, ev *model.Event, userID string, rewards []model.Reward, value int64) {
	for _, r := range rewards {
		d.notify(ctx, model.Notice{
			Kind: model.NoticeReward, ServerID: ev.ServerID, ChannelID: ev.ChannelID,
			UserID: userID, Value: value, RewardID: r.RewardID,
		})
	}
}

func (d *Dispatcher) notify(ctx context.Context, n model.Notice) {
	n.At = d.now()
	d.effects.submit(ctx, effect{name: "notify_" + string(n.Kind), run: func(ctx context.Context) error {
		return d.sink.NotifyGrant(ctx, n)
	}})
}

func (d *Dispatcher) unrecord(ctx context.Context, ev *model.Event) {
	if err := d.processed.Unrecord(ctx, ev.ID); err != nil {
		d.logger.Error(ctx, "failed to un-record event", logger.String("event_id", ev.ID), logger.Error(err))
	}
}

func (d *Dispatcher) fail(ctx context.Context, ev *model.Event, reason string, err error) {
	d.failed.Add(1)
	metrics.RecordEventFailed(reason)
	fields := []logger.Field{logger.String("event_id", ev.ID), logger.String("reason", reason), logger.Error(err)}
	if errors.Is(err, ErrPersistenceFailure) {
		d.logger.Error(ctx, "event not processed", fields...)
		return
	}
	d.logger.Warn(ctx, "event not processed", fields...)
}

func persistenceErrors(r *Report) error {
	var errs []error
	for _, res := range r.Reputation {
		if res.Reason == model.ReasonPersistenceFailure {
			errs = append(errs, res.Err)
		}
	}
	if r.Experience != nil && r.Experience.Reason == model.ReasonPersistenceFailure {
		errs = append(errs, r.Experience.Err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersistenceFailure, errors.Join(errs...))
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Processed:  d.processedCount.Load(),
		Duplicates: d.duplicates.Load(),
		Ignored:    d.ignored.Load(),
		Failed:     d.failed.Load(),
		Grants:     d.grants.Load(),
		LevelUps:   d.levelUps.Load(),
		Rejections: d.rejections.Load(),
	}
}

// Close stops accepting side effects and waits for queued ones.
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.effects.close(ctx)
}

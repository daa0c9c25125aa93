// Package hashtag enforces the [tag] prefix rule on moderated channels.
//
// Enforce classifies a message as ignored, accepted or rejected. Apply carries
// out the rejection: the delete is best effort, the warning is always attempted,
// and neither is retried.
package hashtag

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/internal/domain/trigger"
	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

// ErrSinkFailure wraps failures of the delete or warn action.
var ErrSinkFailure = errors.New("hashtag action failed")

// Actions is the subset of the message action sink the enforcer needs.
type Actions interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendWarning(ctx context.Context, channelID, userID, text string) error
}

// Decision is the outcome of Enforce.
type Decision struct {
	Verdict model.Verdict
	Tags    []string
}

// Enforcer applies the hashtag rule.
type Enforcer struct {
	logger logger.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithLogger sets the enforcer logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Enforcer) { e.logger = l }
}

// NewEnforcer constructs an Enforcer.
func NewEnforcer(opts ...Option) *Enforcer {
	e := &Enforcer{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("hashtag")
	}
	return e
}

// Enforce classifies ev under p. It has no side effects beyond metrics.
func (e *Enforcer) Enforce(p *model.Policy, ev *model.Event) Decision {
	d := classify(p, ev)
	metrics.RecordHashtagVerdict(string(d.Verdict))
	return d
}

func classify(p *model.Policy, ev *model.Event) Decision {
	if ev == nil || ev.Kind != model.KindMessageCreate {
		return Decision{Verdict: model.VerdictIgnored}
	}
	if !p.Enabled(model.FeatureHashtag) || !p.RequiresHashtag(ev.ChannelID) {
		return Decision{Verdict: model.VerdictIgnored}
	}
	tags, ok := trigger.ExtractHashtags(ev.Content)
	if !ok {
		return Decision{Verdict: model.VerdictRejected, Tags: tags}
	}
	return Decision{Verdict: model.VerdictAccepted, Tags: tags}
}

// Apply deletes the rejected message and warns its author. The warning is sent
// even when the delete fails. All failures are joined under ErrSinkFailure.
func (e *Enforcer) Apply(ctx context.Context, actions Actions, p *model.Policy, ev *model.Event) error {
	var errs []error
	if err := actions.DeleteMessage(ctx, ev.ChannelID, ev.MessageID); err != nil {
		metrics.RecordSinkFailure("delete_message")
		errs = append(errs, fmt.Errorf("%w: delete %s/%s: %w", ErrSinkFailure, ev.ChannelID, ev.MessageID, err))
	}
	text := p.HashtagWarning
	if text == "" {
		text = model.DefaultHashtagWarning
	}
	if err := actions.SendWarning(ctx, ev.ChannelID, ev.AuthorID, text); err != nil {
		metrics.RecordSinkFailure("send_warning")
		errs = append(errs, fmt.Errorf("%w: warn %s: %w", ErrSinkFailure, ev.AuthorID, err))
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		e.logger.Warn(ctx, "hashtag enforcement incomplete",
			logger.String("server", ev.ServerID), logger.String("channel", ev.ChannelID), logger.Error(err))
		return err
	}
	e.logger.Debug(ctx, "rejected untagged post",
		logger.String("server", ev.ServerID), logger.String("channel", ev.ChannelID), logger.String("author", ev.AuthorID))
	return nil
}

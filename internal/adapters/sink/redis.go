package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/metrics"
)

// DefaultChannel is the pub/sub channel gateways subscribe to.
const DefaultChannel = "zen:actions"

// RedisSink publishes actions as JSON on a Redis pub/sub channel.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
	now     func() time.Time
}

// NewRedisSink publishes on channel through client.
func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel, now: time.Now}
}

func (s *RedisSink) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return s.publish(ctx, Action{Type: ActionDeleteMessage, ChannelID: channelID, MessageID: messageID})
}

func (s *RedisSink) SendWarning(ctx context.Context, channelID, userID, text string) error {
	return s.publish(ctx, Action{Type: ActionSendWarning, ChannelID: channelID, UserID: userID, Text: text})
}

func (s *RedisSink) NotifyGrant(ctx context.Context, n model.Notice) error {
	return s.publish(ctx, Action{Type: ActionNotify, ChannelID: n.ChannelID, UserID: n.UserID, Notice: &n})
}

func (s *RedisSink) publish(ctx context.Context, a Action) error {
	a.At = s.now().UTC()
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublish, a.Type, err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		metrics.RecordSinkFailure(string(a.Type))
		return fmt.Errorf("%w: %s: %w", ErrPublish, a.Type, err)
	}
	return nil
}

package sink

import (
	"context"

	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
)

// LogSink writes actions to the structured logger. It is the default when no
// gateway is attached.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink returns a sink that logs every action at info level.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Get().Named("sink")
	}
	return &LogSink{logger: l}
}

func (s *LogSink) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	s.logger.Info(ctx, "delete message",
		logger.String("channel", channelID), logger.String("message", messageID))
	return nil
}

func (s *LogSink) SendWarning(ctx context.Context, channelID, userID, text string) error {
	s.logger.Info(ctx, "send warning",
		logger.String("channel", channelID), logger.String("user", userID), logger.String("text", text))
	return nil
}

func (s *LogSink) NotifyGrant(ctx context.Context, n model.Notice) error {
	s.logger.Info(ctx, "notify",
		logger.String("kind", string(n.Kind)),
		logger.String("server", n.ServerID),
		logger.String("user", n.UserID),
		logger.String("actor", n.ActorID),
		logger.Int64("value", n.Value),
		logger.Int("level", n.Level),
		logger.String("reward", n.RewardID),
	)
	return nil
}

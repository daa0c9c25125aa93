package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/zen/internal/domain/cooldown"
)

var _ cooldown.Tracker = (*Tracker)(nil)

// Tracker keeps one key per armed (subject, action) pair, set with NX and a
// millisecond TTL so Redis expires it when the window ends.
type Tracker struct {
	client redis.UniversalClient
	prefix string
}

// NewTracker creates a tracker writing keys under prefix.
func NewTracker(client redis.UniversalClient, prefix string) *Tracker {
	if prefix == "" {
		prefix = "zen"
	}
	return &Tracker{client: client, prefix: prefix + ":cd"}
}

// CheckAndArm arms the window with SET NX PX and reports whether it was free.
func (t *Tracker) CheckAndArm(ctx context.Context, subject, action string, window time.Duration) (bool, error) {
	k := key(t.prefix, action, subject)
	if window <= 0 {
		n, err := t.client.Exists(ctx, k).Result()
		if err != nil {
			return false, fmt.Errorf("%w: %w", cooldown.ErrUnavailable, err)
		}
		return n == 0, nil
	}
	armed, err := t.client.SetNX(ctx, k, 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", cooldown.ErrUnavailable, err)
	}
	return armed, nil
}

// Disarm deletes the cooldown key.
func (t *Tracker) Disarm(ctx context.Context, subject, action string) error {
	if err := t.client.Del(ctx, key(t.prefix, action, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %w", cooldown.ErrUnavailable, err)
	}
	return nil
}

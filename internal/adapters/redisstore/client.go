// Package redisstore implements the cooldown tracker and processed-event set on
// Redis, so several pipeline replicas share rate limits and idempotency.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Connect parses a redis:// URL, opens a client and checks the connection.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return rdb, nil
}

func key(prefix string, parts ...string) string {
	k := prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

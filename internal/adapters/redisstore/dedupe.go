package redisstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/zen/internal/domain/dedupe"
)

var _ dedupe.Deduper = (*Deduper)(nil)

// Deduper records processed event IDs as keys that expire after retention.
type Deduper struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	recorded  atomic.Int64
}

// NewDeduper creates a processed-set under prefix. A non-positive retention
// falls back to 24h.
func NewDeduper(client redis.UniversalClient, prefix string, retention time.Duration) *Deduper {
	if prefix == "" {
		prefix = "zen"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Deduper{client: client, prefix: prefix + ":ev", retention: retention}
}

// SeenAndRecord records id with SET NX and reports whether it already existed.
func (d *Deduper) SeenAndRecord(ctx context.Context, id string) (bool, error) {
	fresh, err := d.client.SetNX(ctx, key(d.prefix, id), 1, d.retention).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if fresh {
		d.recorded.Add(1)
	}
	return !fresh, nil
}

// Seen reports whether id is recorded.
func (d *Deduper) Seen(ctx context.Context, id string) (bool, error) {
	n, err := d.client.Exists(ctx, key(d.prefix, id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Unrecord deletes the key for id.
func (d *Deduper) Unrecord(ctx context.Context, id string) error {
	n, err := d.client.Del(ctx, key(d.prefix, id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if n > 0 {
		d.recorded.Add(-1)
	}
	return nil
}

// Size returns how many IDs this process recorded, net of un-records. Keys
// expired by Redis are not subtracted.
func (d *Deduper) Size() int64 {
	return d.recorded.Load()
}

package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

// Cached memoizes another Source for a bounded time. Concurrent misses for the
// same server share one lookup.
type Cached struct {
	src    Source
	name   string
	cache  *expirable.LRU[string, *model.Policy]
	group  singleflight.Group
	logger logger.Logger
}

var _ Source = (*Cached)(nil)

// CachedOption configures a Cached source.
type CachedOption func(*Cached)

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) CachedOption {
	return func(c *Cached) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithName sets the source label used in metrics.
func WithName(name string) CachedOption {
	return func(c *Cached) {
		if name != "" {
			c.name = name
		}
	}
}

// NewCached wraps src with an LRU of size entries that expire after ttl.
// A non-positive size defaults to 1024.
func NewCached(src Source, size int, ttl time.Duration, opts ...CachedOption) *Cached {
	if size <= 0 {
		size = 1024
	}
	c := &Cached{
		src:    src,
		name:   "cached",
		cache:  expirable.NewLRU[string, *model.Policy](size, nil, ttl),
		logger: logger.Get().Named("policy"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) Policy(ctx context.Context, serverID string) (*model.Policy, error) {
	if p, ok := c.cache.Get(serverID); ok {
		metrics.RecordPolicyLookup(c.name, "hit")
		return p, nil
	}

	v, err, _ := c.group.Do(serverID, func() (any, error) {
		p, err := c.src.Policy(ctx, serverID)
		if err != nil {
			return nil, err
		}
		c.cache.Add(serverID, p)
		return p, nil
	})
	if err != nil {
		metrics.RecordPolicyLookup(c.name, "error")
		c.logger.Warn(ctx, "policy lookup failed",
			logger.String("server_id", serverID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, serverID, err)
	}
	metrics.RecordPolicyLookup(c.name, "miss")
	return v.(*model.Policy), nil
}

// Invalidate drops the cached snapshot of one server.
func (c *Cached) Invalidate(serverID string) {
	c.cache.Remove(serverID)
}

// Len returns the number of cached snapshots.
func (c *Cached) Len() int {
	return c.cache.Len()
}

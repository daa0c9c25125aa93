// Package cooldown implements the per-(subject, action) rate limiter that gates every ledger mutation.
package cooldown

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Actions gated by the tracker.
const (
	ActionReputation = "rep"
	ActionExperience = "xp"
)

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("cooldown tracker unavailable")

// Tracker is the single serialization point preventing double grants.
type Tracker interface {
	// CheckAndArm arms (subject, action) for window and returns true when no live
	// entry exists. A live entry is left untouched and false is returned.
	CheckAndArm(ctx context.Context, subject, action string, window time.Duration) (bool, error)

	// Disarm drops the entry, undoing an arm whose gated mutation failed.
	Disarm(ctx context.Context, subject, action string) error
}

// Subject joins identifier parts into a tracker subject.
func Subject(parts ...string) string {
	return strings.Join(parts, "/")
}

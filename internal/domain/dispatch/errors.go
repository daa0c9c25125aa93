package dispatch

import "errors"

var (
	// ErrPolicyUnavailable means the server policy could not be loaded. The
	// event is un-recorded so a redelivery is processed.
	ErrPolicyUnavailable = errors.New("policy unavailable")
	// ErrPersistenceFailure means at least one ledger mutation failed.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrProcessedSet means the idempotency store could not be consulted.
	ErrProcessedSet = errors.New("processed set unavailable")
	// ErrEffectsClosed is returned when submitting to a closed effects runner.
	ErrEffectsClosed = errors.New("effects runner closed")
)

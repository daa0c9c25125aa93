package model

import "errors"

// Sentinel errors for domain validation.
var (
	ErrInvalidEvent  = errors.New("invalid event")
	ErrInvalidPolicy = errors.New("invalid policy")
	ErrNotFound      = errors.New("not found")
	ErrInvalidLimit  = errors.New("invalid leaderboard limit")
)

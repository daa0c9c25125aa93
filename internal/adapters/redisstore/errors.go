package redisstore

import "errors"

var (
	ErrInvalidURL  = errors.New("invalid redis url")
	ErrUnavailable = errors.New("redis unavailable")
)

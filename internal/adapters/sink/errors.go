package sink

import "errors"

var (
	ErrPublish = errors.New("failed to publish action")
	ErrClosed  = errors.New("sink closed")
)

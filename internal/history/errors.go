package history

import "errors"

var (
	ErrStoreClosed = errors.New("event store closed")
	ErrQueueFull   = errors.New("event queue full")
)

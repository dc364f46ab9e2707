package websocket

import "errors"

// Connection-related errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timed out: outbound buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

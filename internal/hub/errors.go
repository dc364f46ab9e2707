package hub

import "errors"

var (
	// ErrInvalidHandshake rejects a connection missing any identity field.
	// The connection never becomes live.
	ErrInvalidHandshake = errors.New("invalid handshake: missing identity")
)

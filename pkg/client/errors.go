package client

import "errors"

var (
	// ErrNotConnected is returned by Send while the client is not in the
	// Connected state. Messages are never queued for replay.
	ErrNotConnected = errors.New("client not connected")

	// ErrMissingURL rejects construction without a server URL.
	ErrMissingURL = errors.New("missing server URL")
)

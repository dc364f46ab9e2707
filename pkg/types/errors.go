package types

import "errors"

var (
	ErrMissingIdentity = errors.New("missing identity field")
	ErrEmptyPayload    = errors.New("envelope has no payload")
)

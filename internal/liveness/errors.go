package liveness

import "errors"

var (
	ErrAlreadyRunning = errors.New("monitor is already running")
	ErrNotRunning     = errors.New("monitor is not running")
)

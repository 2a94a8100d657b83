package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Launch while a process is live.
	// Launching twice is a programming error, never silently ignored.
	ErrAlreadyRunning = errors.New("agent process already running")

	// ErrNotRunning is returned when writing to a manager with no live
	// process.
	ErrNotRunning = errors.New("no agent process running")
)

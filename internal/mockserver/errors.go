package mockserver

import "errors"

// Mock server errors.
var (
	// ErrSessionClosed is returned when operating on an ended session.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotRunning is returned when the server has not been started.
	ErrNotRunning = errors.New("server not running")

	// ErrNoListener is returned by NewServer for an unusable listen config.
	ErrNoListener = errors.New("invalid listener configuration")
)

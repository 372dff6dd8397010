package hub

import "errors"

var (
	// ErrCapacityExceeded is returned by admission when the registry holds MaxConnections entries.
	ErrCapacityExceeded = errors.New("hub at capacity")
	// ErrRateLimited is returned by admission when a remote address opens connections too quickly.
	ErrRateLimited = errors.New("connection rate limit exceeded")

	ErrHubNotRunning      = errors.New("hub is not running")
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrSinkClosed         = errors.New("sink closed")
	ErrSinkFull           = errors.New("sink buffer full")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrNotOwner           = errors.New("connection belongs to another owner")

	errDuplicateID = errors.New("duplicate connection id")
)

package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned by on-demand operations when no adapter
// connection is established
var ErrNotConnected = errors.New("engine is not connected")

// ConnectionError means the adapter could not be reached at start-up.
// Fatal to Start; retrying is an operator decision.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("unable to establish adapter connection on %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError means a single command's query failed. Never aborts a poll
// cycle; surfaced directly only from on-demand diagnostic operations.
type QueryError struct {
	Command string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s failed: %v", e.Command, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ShutdownError means the poll loop failed to halt within its bound.
// Fatal; the engine is left in Stopping and must not be reused.
type ShutdownError struct {
	Timeout time.Duration
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("poll loop did not stop within %s", e.Timeout)
}

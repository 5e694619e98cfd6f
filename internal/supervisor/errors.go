package supervisor

import (
	"errors"
	"fmt"
)

// ErrNotRunning is returned by SendCommand outside the running state; no
// process mutation occurred.
var ErrNotRunning = errors.New("server not running")

// ErrClosed is returned for operations on a supervisor whose loop has been
// shut down.
var ErrClosed = errors.New("supervisor closed")

// SpawnError reports that the OS refused to create the process. It unwraps
// to the OS-level cause.
type SpawnError struct {
	ID  string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.ID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

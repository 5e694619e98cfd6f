// Package history exports server lifecycle events to external stores.
// Sinks are observational: nothing in the supervision core reads them back,
// so runtime state stays ephemeral.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start" // process spawned, entering starting
	EventReady EventType = "ready" // readiness detected (or fallback elapsed)
	EventStop  EventType = "stop"  // clean stop
	EventCrash EventType = "crash" // unexpected exit
)

// Event is one lifecycle event for one server.
type Event struct {
	Type       EventType `json:"type"`
	ServerID   string    `json:"server_id"`
	PID        int       `json:"pid"`
	ExitCode   int       `json:"exit_code"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for lifecycle events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

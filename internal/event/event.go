// Package event defines the activity contract between supervisors and
// external consumers. Events are emitted synchronously with the transition
// that caused them; delivery order per server matches transition order.
// No ordering is guaranteed across different servers.
package event

import "time"

// Console is one line of process output.
type Console struct {
	ServerID string    `json:"server_id"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Status is a state-machine transition. ExitCode is meaningful only when
// the transition was caused by a process exit (To is stopped or crashed);
// it is -1 when the process was terminated by a signal.
type Status struct {
	ServerID string    `json:"server_id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	PID      int       `json:"pid"`
	ExitCode int       `json:"exit_code"`
	At       time.Time `json:"at"`
}

// Players is a player-count change with the full current roster.
type Players struct {
	ServerID string    `json:"server_id"`
	Count    int       `json:"count"`
	Names    []string  `json:"names"`
	At       time.Time `json:"at"`
}

// Listener signatures used by the registry's process-wide registration
// points. Listeners run on the emitting supervisor's goroutine and must
// not block.
type (
	ConsoleListener func(Console)
	StatusListener  func(Status)
	PlayersListener func(Players)
)

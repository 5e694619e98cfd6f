package supervisor

import "time"

// RuntimeInfo is a point-in-time snapshot of one supervised server. It is
// derived state: only the owning supervisor mutates the underlying fields.
type RuntimeInfo struct {
	ServerID    string        `json:"server_id"`
	State       State         `json:"state"`
	PID         int           `json:"pid,omitempty"`
	StartedAt   time.Time     `json:"started_at,omitzero"`
	Uptime      time.Duration `json:"uptime,omitempty"`
	Players     []string      `json:"players,omitempty"`
	PlayerCount int           `json:"player_count"`
	ExitCode    int           `json:"exit_code"`
}

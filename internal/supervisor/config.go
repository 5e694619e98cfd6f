package supervisor

import (
	"time"

	"github.com/spawnkit/spawnd/internal/classify"
	"github.com/spawnkit/spawnd/internal/console"
	"github.com/spawnkit/spawnd/internal/logger"
)

// Defaults applied by Config.Normalize.
const (
	DefaultStopCommand  = "stop"
	DefaultReadyTimeout = 120 * time.Second
	DefaultStopGrace    = 30 * time.Second
	DefaultKillGrace    = 10 * time.Second
)

// Config describes one game server process to supervise.
type Config struct {
	ID         string   `json:"id"`
	Executable string   `json:"executable"`
	WorkDir    string   `json:"work_dir"`
	Args       []string `json:"args"`
	Env        []string `json:"env"` // KEY=VALUE, appended to the daemon environment

	// Port is the game port the server binds; the registry probes it
	// before start. Zero disables the probe.
	Port int `json:"port"`

	// StopCommand is written to the server's stdin for a polite shutdown.
	StopCommand string `json:"stop_command"`

	// StdinEncoding selects the charset for stdin writes. Empty means
	// UTF-8 passthrough; some server binaries expect a legacy codepage.
	StdinEncoding string `json:"stdin_encoding"`

	// ReadyTimeout bounds the starting phase: if no readiness marker is
	// seen before it elapses, the supervisor assumes the server is up.
	ReadyTimeout time.Duration `json:"ready_timeout"`

	// StopGrace (G1) is how long a stop waits for a cooperative exit
	// before SIGTERM; KillGrace (G2) is the further wait before SIGKILL.
	StopGrace time.Duration `json:"stop_grace"`
	KillGrace time.Duration `json:"kill_grace"`

	// HistorySize is the console ring capacity (default 1000).
	HistorySize int `json:"history_size"`

	Classifier classify.Classifier  `json:"-"`
	Capture    logger.CaptureConfig `json:"capture"`
}

// Normalize fills zero fields with defaults.
func (c *Config) Normalize() {
	if c.StopCommand == "" {
		c.StopCommand = DefaultStopCommand
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.HistorySize <= 0 {
		c.HistorySize = console.DefaultCapacity
	}
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/spawnkit/spawnd/internal/classify"
	"github.com/spawnkit/spawnd/internal/history"
	"github.com/spawnkit/spawnd/internal/logger"
	"github.com/spawnkit/spawnd/internal/registry"
	"github.com/spawnkit/spawnd/internal/supervisor"
)

// FileConfig is the top-level TOML structure.
//
//	[log]
//	level = "info"
//
//	[http]
//	listen = ":8420"
//
//	[history]
//	enabled = true
//	dsn = "sqlite:///var/lib/spawnd/history.db"
//
//	[[servers]]
//	id = "survival"
//	executable = "/usr/bin/java"
//	args = ["-Xmx4G", "-jar", "server.jar", "nogui"]
//	workdir = "/srv/minecraft/survival"
//	port = 25565
//	auto_start = true
type FileConfig struct {
	Log      LogConfig      `toml:"log" mapstructure:"log"`
	HTTP     HTTPConfig     `toml:"http" mapstructure:"http"`
	History  history.Config `toml:"history" mapstructure:"history"`
	Capture  CaptureConfig  `toml:"capture" mapstructure:"capture"`
	Shutdown time.Duration  `toml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	Servers  []ServerConfig `toml:"servers" mapstructure:"servers"`
}

type LogConfig struct {
	Level string `toml:"level" mapstructure:"level"`
	Color bool   `toml:"color" mapstructure:"color"`
}

type HTTPConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

// CaptureConfig mirrors logger.CaptureConfig for per-server console files.
type CaptureConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	ID            string        `toml:"id" mapstructure:"id"`
	Name          string        `toml:"name" mapstructure:"name"`
	Executable    string        `toml:"executable" mapstructure:"executable"`
	Args          []string      `toml:"args" mapstructure:"args"`
	WorkDir       string        `toml:"workdir" mapstructure:"workdir"`
	Env           []string      `toml:"env" mapstructure:"env"`
	Port          int           `toml:"port" mapstructure:"port"`
	AutoStart     bool          `toml:"auto_start" mapstructure:"auto_start"`
	ReadyPattern  string        `toml:"ready_pattern" mapstructure:"ready_pattern"`
	JoinPattern   string        `toml:"join_pattern" mapstructure:"join_pattern"`
	LeavePattern  string        `toml:"leave_pattern" mapstructure:"leave_pattern"`
	StopCommand   string        `toml:"stop_command" mapstructure:"stop_command"`
	StdinEncoding string        `toml:"stdin_encoding" mapstructure:"stdin_encoding"`
	ReadyTimeout  time.Duration `toml:"ready_timeout" mapstructure:"ready_timeout"`
	StopGrace     time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	KillGrace     time.Duration `toml:"kill_grace" mapstructure:"kill_grace"`
	HistorySize   int           `toml:"history_size" mapstructure:"history_size"`

	// Capture overrides the daemon-wide console capture settings for
	// this server when present.
	Capture *CaptureConfig `toml:"capture" mapstructure:"capture"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (fc *FileConfig) Validate() error {
	seen := make(map[string]struct{}, len(fc.Servers))
	ports := make(map[int]string, len(fc.Servers))
	for i := range fc.Servers {
		sc := &fc.Servers[i]
		if sc.ID == "" {
			return fmt.Errorf("servers[%d]: id is required", i)
		}
		if _, dup := seen[sc.ID]; dup {
			return fmt.Errorf("servers[%d]: duplicate id %q", i, sc.ID)
		}
		seen[sc.ID] = struct{}{}
		if sc.Executable == "" {
			return fmt.Errorf("server %s: executable is required", sc.ID)
		}
		if sc.Port < 0 || sc.Port > 65535 {
			return fmt.Errorf("server %s: port %d out of range", sc.ID, sc.Port)
		}
		if sc.Port > 0 {
			if other, dup := ports[sc.Port]; dup {
				return fmt.Errorf("server %s: port %d already assigned to %s", sc.ID, sc.Port, other)
			}
			ports[sc.Port] = sc.ID
		}
		if _, err := sc.classifier(); err != nil {
			return fmt.Errorf("server %s: %w", sc.ID, err)
		}
	}
	return nil
}

// ListenAddr returns the HTTP listen address, defaulted.
func (fc *FileConfig) ListenAddr() string {
	if fc.HTTP.Listen == "" {
		return ":8420"
	}
	return fc.HTTP.Listen
}

// ShutdownTimeout is the per-server graceful stop budget on teardown.
func (fc *FileConfig) ShutdownTimeout() time.Duration {
	if fc.Shutdown <= 0 {
		return registry.DefaultShutdownTimeout
	}
	return fc.Shutdown
}

func (sc *ServerConfig) classifier() (classify.Classifier, error) {
	ready := sc.ReadyPattern
	if ready == "" {
		ready = classify.DefaultReadyPattern
	}
	join := sc.JoinPattern
	if join == "" {
		join = classify.DefaultJoinPattern
	}
	leave := sc.LeavePattern
	if leave == "" {
		leave = classify.DefaultLeavePattern
	}
	return classify.New(ready, join, leave)
}

// SupervisorConfig compiles a server entry into the runtime configuration,
// including the shared console capture settings.
func (sc *ServerConfig) SupervisorConfig(capture CaptureConfig) (supervisor.Config, error) {
	cls, err := sc.classifier()
	if err != nil {
		return supervisor.Config{}, fmt.Errorf("server %s: %w", sc.ID, err)
	}
	if sc.Capture != nil {
		capture = *sc.Capture
	}
	cfg := supervisor.Config{
		ID:            sc.ID,
		Executable:    sc.Executable,
		Args:          append([]string(nil), sc.Args...),
		WorkDir:       sc.WorkDir,
		Env:           append([]string(nil), sc.Env...),
		Port:          sc.Port,
		StopCommand:   sc.StopCommand,
		StdinEncoding: sc.StdinEncoding,
		ReadyTimeout:  sc.ReadyTimeout,
		StopGrace:     sc.StopGrace,
		KillGrace:     sc.KillGrace,
		HistorySize:   sc.HistorySize,
		Classifier:    cls,
		Capture: logger.CaptureConfig{
			Dir:        capture.Dir,
			MaxSizeMB:  capture.MaxSizeMB,
			MaxBackups: capture.MaxBackups,
			MaxAgeDays: capture.MaxAgeDays,
			Compress:   capture.Compress,
		},
	}
	cfg.Normalize()
	return cfg, nil
}

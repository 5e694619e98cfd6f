package spawnd

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spawnkit/spawnd/internal/classify"
	"github.com/spawnkit/spawnd/internal/config"
	"github.com/spawnkit/spawnd/internal/console"
	"github.com/spawnkit/spawnd/internal/event"
	"github.com/spawnkit/spawnd/internal/history"
	"github.com/spawnkit/spawnd/internal/metrics"
	"github.com/spawnkit/spawnd/internal/registry"
	iapi "github.com/spawnkit/spawnd/internal/server"
	"github.com/spawnkit/spawnd/internal/supervisor"
)

// Re-export core types for embedding consumers. These are aliases, so
// conversions are zero-cost.

type ServerConfig = supervisor.Config

type RuntimeInfo = supervisor.RuntimeInfo

type State = supervisor.State

type ConsoleLine = console.Line

type ConsoleEvent = event.Console

type StatusEvent = event.Status

type PlayersEvent = event.Players

type Classifier = classify.Classifier

type HistoryConfig = history.Config

type HistorySink = history.Sink

const (
	StateStopped  = supervisor.StateStopped
	StateStarting = supervisor.StateStarting
	StateRunning  = supervisor.StateRunning
	StateStopping = supervisor.StateStopping
	StateCrashed  = supervisor.StateCrashed
)

// Registry is a thin facade over the internal registry, providing a stable
// public API for embedding the supervision engine in another daemon.
type Registry struct{ inner *registry.Registry }

func New() *Registry { return &Registry{inner: registry.New(nil)} }

func (r *Registry) Register(cfg ServerConfig) error  { return r.inner.Register(cfg) }
func (r *Registry) Unregister(id string) error       { return r.inner.Unregister(id) }
func (r *Registry) IDs() []string                    { return r.inner.IDs() }
func (r *Registry) Start(id string) (RuntimeInfo, error)   { return r.inner.Start(id) }
func (r *Registry) Stop(id string) (RuntimeInfo, error)    { return r.inner.Stop(id) }
func (r *Registry) Restart(id string) (RuntimeInfo, error) { return r.inner.Restart(id) }
func (r *Registry) Kill(id string) (RuntimeInfo, error)    { return r.inner.Kill(id) }
func (r *Registry) SendCommand(id, text string) error      { return r.inner.SendCommand(id, text) }
func (r *Registry) Status(id string) (RuntimeInfo, error)  { return r.inner.Status(id) }
func (r *Registry) StatusAll() []RuntimeInfo               { return r.inner.StatusAll() }
func (r *Registry) History(id string) ([]ConsoleLine, error) {
	return r.inner.History(id)
}
func (r *Registry) ClearHistory(id string) error { return r.inner.ClearHistory(id) }
func (r *Registry) Await(id string, pred func(State) bool, timeout time.Duration) (State, error) {
	return r.inner.Await(id, pred, timeout)
}
func (r *Registry) ShutdownAll(perServer time.Duration) { r.inner.ShutdownAll(perServer) }

func (r *Registry) OnConsole(fn func(ConsoleEvent)) { r.inner.OnConsole(fn) }
func (r *Registry) OnStatus(fn func(StatusEvent))   { r.inner.OnStatus(fn) }
func (r *Registry) OnPlayers(fn func(PlayersEvent)) { r.inner.OnPlayers(fn) }

func (r *Registry) SetHistorySinks(sinks ...HistorySink) { r.inner.SetHistorySinks(sinks...) }

// NewHistorySink builds a lifecycle sink from a DSN (sqlite path or
// postgres URL).
func NewHistorySink(dsn string) (HistorySink, error) { return history.NewSinkFromDSN(dsn) }

// LoadConfig reads and validates a TOML configuration file.
func LoadConfig(path string) (*config.FileConfig, error) { return config.Load(path) }

// NewHTTPServer starts an HTTP server exposing the REST API for the given
// registry, without websocket streaming. Embedders wanting the stream
// should run the spawnd daemon instead.
func NewHTTPServer(addr, basePath string, r *Registry) *http.Server {
	return iapi.NewServer(addr, basePath, r.inner, nil)
}

// RegisterMetrics installs the Prometheus collectors.
func RegisterMetrics(reg prometheus.Registerer) error { return metrics.Register(reg) }

// DefaultClassifier returns the stock Minecraft-style console classifier.
func DefaultClassifier() Classifier { return classify.Default() }

package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spawnd",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server process starts.",
		}, []string{"server"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spawnd",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of clean server stops.",
		}, []string{"server"},
	)
	serverCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spawnd",
			Subsystem: "server",
			Name:      "crashes_total",
			Help:      "Number of unexpected server exits.",
		}, []string{"server"},
	)
	serverKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spawnd",
			Subsystem: "server",
			Name:      "force_kills_total",
			Help:      "Number of forced terminations (kill escalation or explicit kill).",
		}, []string{"server"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spawnd",
			Subsystem: "server",
			Name:      "state_transitions_total",
			Help:      "Number of state machine transitions.",
		}, []string{"server", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spawnd",
			Subsystem: "server",
			Name:      "current_state",
			Help:      "Current server state (1 = active state, 0 = inactive).",
		}, []string{"server", "state"},
	)
	onlinePlayers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spawnd",
			Subsystem: "server",
			Name:      "online_players",
			Help:      "Current number of online players.",
		}, []string{"server"},
	)
	consoleLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spawnd",
			Subsystem: "server",
			Name:      "console_lines_total",
			Help:      "Number of console lines read from server output.",
		}, []string{"server"},
	)
)

// Register registers all collectors with the provided registerer. Safe to
// call multiple times; calls after the first success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serverStarts, serverStops, serverCrashes, serverKills,
		stateTransitions, currentState, onlinePlayers, consoleLines,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(server string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(server).Inc()
	}
}

func IncStop(server string) {
	if regOK.Load() {
		serverStops.WithLabelValues(server).Inc()
	}
}

func IncCrash(server string) {
	if regOK.Load() {
		serverCrashes.WithLabelValues(server).Inc()
	}
}

func IncForceKill(server string) {
	if regOK.Load() {
		serverKills.WithLabelValues(server).Inc()
	}
}

func RecordStateTransition(server, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(server, from, to).Inc()
		currentState.WithLabelValues(server, from).Set(0)
		currentState.WithLabelValues(server, to).Set(1)
	}
}

func SetOnlinePlayers(server string, n int) {
	if regOK.Load() {
		onlinePlayers.WithLabelValues(server).Set(float64(n))
	}
}

func IncConsoleLines(server string) {
	if regOK.Load() {
		consoleLines.WithLabelValues(server).Inc()
	}
}

// Package registry owns the set of supervised game servers. It maps ids
// to supervisors, enforces port exclusivity at start time, fans supervisor
// events out to subscribers, and records lifecycle history.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spawnkit/spawnd/internal/console"
	"github.com/spawnkit/spawnd/internal/event"
	"github.com/spawnkit/spawnd/internal/history"
	"github.com/spawnkit/spawnd/internal/supervisor"
)

var (
	ErrNotFound  = errors.New("server not found")
	ErrPortInUse = errors.New("port already in use")
)

// DefaultShutdownTimeout bounds the graceful stop of each server during
// daemon teardown before the registry escalates to a kill.
const DefaultShutdownTimeout = 45 * time.Second

type entry struct {
	sup *supervisor.Supervisor
	cfg supervisor.Config
}

// Registry is safe for concurrent use. Operations on distinct servers
// never serialize against each other; the registry lock only guards the
// id map and the subscriber lists.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	log       *slog.Logger
	consoleLs []event.ConsoleListener
	statusLs  []event.StatusListener
	playersLs []event.PlayersListener
	histSinks []history.Sink
}

func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		log:     log,
	}
}

// SetHistorySinks configures external lifecycle sinks (SQLite, PostgreSQL).
// Passing no sinks clears the list.
func (r *Registry) SetHistorySinks(sinks ...history.Sink) {
	r.mu.Lock()
	r.histSinks = append([]history.Sink(nil), sinks...)
	r.mu.Unlock()
}

// OnConsole subscribes to console output from every registered server.
// Listeners run on the emitting server's goroutine and must return quickly.
func (r *Registry) OnConsole(fn event.ConsoleListener) {
	r.mu.Lock()
	r.consoleLs = append(r.consoleLs, fn)
	r.mu.Unlock()
}

func (r *Registry) OnStatus(fn event.StatusListener) {
	r.mu.Lock()
	r.statusLs = append(r.statusLs, fn)
	r.mu.Unlock()
}

func (r *Registry) OnPlayers(fn event.PlayersListener) {
	r.mu.Lock()
	r.playersLs = append(r.playersLs, fn)
	r.mu.Unlock()
}

// Register adds a server definition and builds its supervisor. The id must
// be unique; registering an existing id is an error.
func (r *Registry) Register(cfg supervisor.Config) error {
	if cfg.ID == "" {
		return fmt.Errorf("register: empty server id")
	}
	cfg.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[cfg.ID]; ok {
		return fmt.Errorf("register %s: id already registered", cfg.ID)
	}
	sup := supervisor.New(cfg, supervisor.Events{
		Console: r.dispatchConsole,
		Status:  r.dispatchStatus,
		Players: r.dispatchPlayers,
	})
	r.entries[cfg.ID] = &entry{sup: sup, cfg: cfg}
	return nil
}

// Unregister force-terminates the server if needed and removes it.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unregister %s: %w", id, ErrNotFound)
	}
	e.sup.Close()
	return nil
}

// IDs returns the registered server ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Start launches the server. If the configured port is already bound by
// another process the start is refused with ErrPortInUse.
func (r *Registry) Start(id string) (supervisor.RuntimeInfo, error) {
	e, err := r.lookup(id)
	if err != nil {
		return supervisor.RuntimeInfo{}, err
	}
	if e.cfg.Port > 0 && e.sup.Info().State.Terminal() {
		if err := probePort(e.cfg.Port); err != nil {
			return e.sup.Info(), fmt.Errorf("start %s: %w: port %d", id, ErrPortInUse, e.cfg.Port)
		}
	}
	cfg := e.cfg
	return e.sup.Start(cfg)
}

func (r *Registry) Stop(id string) (supervisor.RuntimeInfo, error) {
	e, err := r.lookup(id)
	if err != nil {
		return supervisor.RuntimeInfo{}, err
	}
	return e.sup.Stop()
}

func (r *Registry) Restart(id string) (supervisor.RuntimeInfo, error) {
	e, err := r.lookup(id)
	if err != nil {
		return supervisor.RuntimeInfo{}, err
	}
	return e.sup.Restart()
}

func (r *Registry) Kill(id string) (supervisor.RuntimeInfo, error) {
	e, err := r.lookup(id)
	if err != nil {
		return supervisor.RuntimeInfo{}, err
	}
	return e.sup.Kill()
}

func (r *Registry) SendCommand(id, text string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	return e.sup.SendCommand(text)
}

func (r *Registry) Status(id string) (supervisor.RuntimeInfo, error) {
	e, err := r.lookup(id)
	if err != nil {
		return supervisor.RuntimeInfo{}, err
	}
	return e.sup.Info(), nil
}

// StatusAll returns a snapshot per server, ordered by id.
func (r *Registry) StatusAll() []supervisor.RuntimeInfo {
	r.mu.RLock()
	sups := make([]*supervisor.Supervisor, 0, len(r.entries))
	for _, e := range r.entries {
		sups = append(sups, e.sup)
	}
	r.mu.RUnlock()

	infos := make([]supervisor.RuntimeInfo, 0, len(sups))
	for _, s := range sups {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ServerID < infos[j].ServerID })
	return infos
}

func (r *Registry) History(id string) ([]console.Line, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.sup.History(), nil
}

func (r *Registry) ClearHistory(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.sup.ClearHistory()
	return nil
}

// Await blocks until the server's state satisfies pred or timeout elapses.
func (r *Registry) Await(id string, pred func(supervisor.State) bool, timeout time.Duration) (supervisor.State, error) {
	e, err := r.lookup(id)
	if err != nil {
		return supervisor.StateStopped, err
	}
	return e.sup.Await(pred, timeout)
}

// ShutdownAll stops every server in parallel, escalating to a kill when a
// server fails to reach a terminal state within perServer. It returns once
// every supervisor goroutine has exited.
func (r *Registry) ShutdownAll(perServer time.Duration) {
	if perServer <= 0 {
		perServer = DefaultShutdownTimeout
	}
	r.mu.RLock()
	ents := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		ents = append(ents, e)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, e := range ents {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			defer e.sup.Close()
			info := e.sup.Info()
			if info.State.Terminal() {
				return
			}
			if info.State == supervisor.StateRunning {
				_, _ = e.sup.Stop()
			}
			if _, err := e.sup.Await(supervisor.State.Terminal, perServer); err != nil {
				r.log.Warn("graceful stop timed out, killing", "server", e.sup.ID())
				_, _ = e.sup.Kill()
				_, _ = e.sup.Await(supervisor.State.Terminal, 5*time.Second)
			}
		}(e)
	}
	wg.Wait()
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("server %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (r *Registry) dispatchConsole(e event.Console) {
	r.mu.RLock()
	ls := append([]event.ConsoleListener(nil), r.consoleLs...)
	r.mu.RUnlock()
	for _, fn := range ls {
		fn(e)
	}
}

func (r *Registry) dispatchPlayers(e event.Players) {
	r.mu.RLock()
	ls := append([]event.PlayersListener(nil), r.playersLs...)
	r.mu.RUnlock()
	for _, fn := range ls {
		fn(e)
	}
}

func (r *Registry) dispatchStatus(e event.Status) {
	r.mu.RLock()
	ls := append([]event.StatusListener(nil), r.statusLs...)
	sinks := append([]history.Sink(nil), r.histSinks...)
	r.mu.RUnlock()
	for _, fn := range ls {
		fn(e)
	}
	if len(sinks) == 0 {
		return
	}
	evt, ok := historyEvent(e)
	if !ok {
		return
	}
	// Synchronous so sinks observe transitions in order.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range sinks {
		if err := s.Send(ctx, evt); err != nil {
			r.log.Warn("history sink write failed", "server", e.ServerID, "error", err)
		}
	}
}

func historyEvent(e event.Status) (history.Event, bool) {
	var t history.EventType
	switch e.To {
	case "starting":
		t = history.EventStart
	case "running":
		t = history.EventReady
	case "stopped":
		t = history.EventStop
	case "crashed":
		t = history.EventCrash
	default:
		return history.Event{}, false
	}
	return history.Event{
		Type:       t,
		ServerID:   e.ServerID,
		PID:        e.PID,
		ExitCode:   e.ExitCode,
		OccurredAt: e.At,
	}, true
}

// probePort confirms the TCP port is free by binding and releasing it.
func probePort(port int) error {
	l, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return l.Close()
}

// Package supervisor owns exactly one external game server process: the
// start/stop/crash state machine, readiness detection, command injection,
// and activity parsing.
//
// Every transition happens on a single goroutine fed by one in-order
// message queue carrying both external commands and internal process
// events (output lines, exit, timer fires). Timer messages carry a
// generation counter; an exit bumps the generation so stale timers are
// ignored without cancellation races.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/spawnkit/spawnd/internal/classify"
	"github.com/spawnkit/spawnd/internal/console"
	"github.com/spawnkit/spawnd/internal/event"
	"github.com/spawnkit/spawnd/internal/metrics"
)

// Events carries the listener hooks a supervisor emits into. Nil fields
// are skipped. Hooks run on the state-machine goroutine: per-server
// ordering is exactly transition order, and hooks must not block.
type Events struct {
	Console event.ConsoleListener
	Status  event.StatusListener
	Players event.PlayersListener
}

type msgKind int

const (
	msgStart msgKind = iota
	msgStop
	msgKill
	msgSend
	msgRestartCheck
	msgHistory
	msgClearHistory
	msgLine
	msgExit
	msgReadyTimeout
	msgGraceTerm
	msgGraceKill
	msgClose
)

type message struct {
	kind  msgKind
	cfg   *Config
	text  string
	err   error
	gen   uint64
	reply chan result
}

type result struct {
	info  RuntimeInfo
	cfg   Config
	lines []console.Line
	err   error
}

// Supervisor manages one external server process. Create with New; the
// zero value is not usable.
type Supervisor struct {
	id     string // immutable after New
	msgs   chan message
	closed chan struct{}

	// Snapshot mirror of loop state, for non-blocking reads.
	mu      sync.RWMutex
	info    RuntimeInfo
	waiters []chan State

	// Loop-owned state. Never touched outside run().
	cfg      Config
	events   Events
	history  *console.History
	state    State
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	pid      int
	gen      uint64
	players  map[string]struct{}
	killReq  bool
	capture  io.WriteCloser
	closeFn  sync.Once
}

// New creates a supervisor in the stopped state and starts its
// state-machine goroutine. cfg provides the initial configuration; Start
// may supply a fresh one.
func New(cfg Config, ev Events) *Supervisor {
	cfg.Normalize()
	s := &Supervisor{
		id:      cfg.ID,
		msgs:    make(chan message, 64),
		closed:  make(chan struct{}),
		cfg:     cfg,
		events:  ev,
		history: console.NewHistory(cfg.HistorySize),
		state:   StateStopped,
		players: make(map[string]struct{}),
	}
	s.info = RuntimeInfo{ServerID: cfg.ID, State: StateStopped}
	go s.run()
	return s
}

// ID returns the server identifier this supervisor owns.
func (s *Supervisor) ID() string { return s.id }

// --- External API (safe from any goroutine) ---

// Start launches the server process. From any state other than stopped or
// crashed it is a safe no-op reporting the current state.
func (s *Supervisor) Start(cfg Config) (RuntimeInfo, error) {
	cfg.Normalize()
	return s.request(message{kind: msgStart, cfg: &cfg})
}

// Stop begins a polite shutdown: the stop command is written to the
// server's stdin and the two-stage grace escalation is armed. A no-op
// unless running.
func (s *Supervisor) Stop() (RuntimeInfo, error) {
	return s.request(message{kind: msgStop})
}

// Kill force-terminates the process. The state transition to stopped
// lands when the OS confirms the exit.
func (s *Supervisor) Kill() (RuntimeInfo, error) {
	return s.request(message{kind: msgKill})
}

// SendCommand writes text plus a line terminator to the server's stdin.
// Returns ErrNotRunning outside the running state, with no side effect.
func (s *Supervisor) SendCommand(text string) error {
	_, err := s.request(message{kind: msgSend, text: text})
	return err
}

// Restart stops the server, waits for it to reach a terminal state within
// the stop budget, and starts it again with the prior configuration. If
// the stop does not complete in time, Restart fails rather than escalating
// to a silent kill.
func (s *Supervisor) Restart() (RuntimeInfo, error) {
	cfg, info, err := s.restartCheck()
	if err != nil {
		return info, err
	}
	switch info.State {
	case StateRunning:
		if _, err := s.Stop(); err != nil {
			return s.Info(), err
		}
		budget := cfg.StopGrace + cfg.KillGrace + 2*time.Second
		st, err := s.Await(State.Terminal, budget)
		if err != nil {
			return s.Info(), fmt.Errorf("restart %s: stop did not complete within %s (state %s)", cfg.ID, budget, st)
		}
	case StateStopped, StateCrashed:
		// Plain start below.
	default:
		// Starting or stopping: concurrent duplicate request, safe no-op.
		return info, nil
	}
	return s.Start(cfg)
}

// Info returns a point-in-time RuntimeInfo snapshot.
func (s *Supervisor) Info() RuntimeInfo {
	s.mu.RLock()
	info := s.info
	info.Players = append([]string(nil), s.info.Players...)
	s.mu.RUnlock()
	if info.PID > 0 && (info.State == StateRunning || info.State == StateStarting || info.State == StateStopping) {
		if ts := procStartUnix(info.PID); ts > 0 {
			info.Uptime = time.Since(time.Unix(ts, 0))
		} else if !info.StartedAt.IsZero() {
			info.Uptime = time.Since(info.StartedAt)
		}
	}
	return info
}

// History returns the console ring contents oldest-first. The read is
// serialized through the state machine, so it never races a push.
func (s *Supervisor) History() []console.Line {
	reply := make(chan result, 1)
	select {
	case s.msgs <- message{kind: msgHistory, reply: reply}:
		return s.await(reply).lines
	case <-s.closed:
		return nil
	}
}

// ClearHistory empties the console ring.
func (s *Supervisor) ClearHistory() {
	_, _ = s.request(message{kind: msgClearHistory})
}

// Await blocks until the state satisfies pred or the timeout elapses.
func (s *Supervisor) Await(pred func(State) bool, timeout time.Duration) (State, error) {
	if st := s.Info().State; pred(st) {
		return st, nil
	}
	ch := s.subscribe()
	defer s.unsubscribe(ch)
	// Re-check after subscribing so a transition in between is not missed.
	if st := s.Info().State; pred(st) {
		return st, nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case st := <-ch:
			if pred(st) {
				return st, nil
			}
		case <-deadline.C:
			st := s.Info().State
			return st, fmt.Errorf("await %s: timed out after %s in state %s", s.id, timeout, st)
		case <-s.closed:
			return s.Info().State, ErrClosed
		}
	}
}

// Close shuts down the state-machine goroutine, force-killing any live
// process. Used on daemon teardown and in tests.
func (s *Supervisor) Close() {
	reply := make(chan result, 1)
	select {
	case s.msgs <- message{kind: msgClose, reply: reply}:
		s.await(reply)
	case <-s.closed:
	}
}

func (s *Supervisor) request(m message) (RuntimeInfo, error) {
	m.reply = make(chan result, 1)
	select {
	case s.msgs <- m:
		r := s.await(m.reply)
		return r.info, r.err
	case <-s.closed:
		return s.Info(), ErrClosed
	}
}

func (s *Supervisor) restartCheck() (Config, RuntimeInfo, error) {
	reply := make(chan result, 1)
	select {
	case s.msgs <- message{kind: msgRestartCheck, reply: reply}:
		r := s.await(reply)
		return r.cfg, r.info, r.err
	case <-s.closed:
		return Config{}, s.Info(), ErrClosed
	}
}

// await waits for a reply without deadlocking against shutdown. A send can
// win its select in the same window a close lands in the queue; the loop
// stops consuming after the close, so the reply must also watch closed.
func (s *Supervisor) await(reply chan result) result {
	select {
	case r := <-reply:
		return r
	case <-s.closed:
		// The loop may have answered just before shutting down.
		select {
		case r := <-reply:
			return r
		default:
			return result{info: s.snapshot(), err: ErrClosed}
		}
	}
}

// post delivers loop-originated messages (pumps, timers, exit watcher)
// without leaking goroutines once the supervisor is closed.
func (s *Supervisor) post(m message) {
	select {
	case s.msgs <- m:
	case <-s.closed:
	}
}

// --- State machine ---

func (s *Supervisor) run() {
	for m := range s.msgs {
		switch m.kind {
		case msgStart:
			s.reply(m, s.handleStart(m.cfg))
		case msgStop:
			s.reply(m, s.handleStop())
		case msgKill:
			s.reply(m, s.handleKill())
		case msgSend:
			s.reply(m, s.handleSend(m.text))
		case msgRestartCheck:
			s.reply(m, result{info: s.snapshot(), cfg: s.cfg})
		case msgHistory:
			s.reply(m, result{lines: s.history.Lines()})
		case msgClearHistory:
			s.history.Clear()
			s.reply(m, result{info: s.snapshot()})
		case msgLine:
			s.handleLine(m.text)
		case msgExit:
			s.handleExit(m.err)
		case msgReadyTimeout:
			if m.gen == s.gen && s.state == StateStarting {
				// No marker arrived; assume the server is up (degraded).
				s.transition(StateRunning, 0)
			}
		case msgGraceTerm:
			if m.gen == s.gen && s.state == StateStopping && s.pid > 0 {
				_ = terminateGroup(s.pid)
				gen := m.gen
				time.AfterFunc(s.cfg.KillGrace, func() {
					s.post(message{kind: msgGraceKill, gen: gen})
				})
			}
		case msgGraceKill:
			if m.gen == s.gen && s.state == StateStopping && s.pid > 0 {
				_ = killGroup(s.pid)
				metrics.IncForceKill(s.cfg.ID)
			}
		case msgClose:
			if s.pid > 0 && !s.state.Terminal() {
				_ = killGroup(s.pid)
			}
			s.closeWriters()
			s.closeFn.Do(func() { close(s.closed) })
			s.reply(m, result{})
			s.drain()
			return
		}
	}
}

func (s *Supervisor) reply(m message, r result) {
	if m.reply != nil {
		m.reply <- r
	}
}

// drain answers any requests that were queued behind the close message so
// their callers do not hang on a loop that is gone.
func (s *Supervisor) drain() {
	for {
		select {
		case m := <-s.msgs:
			s.reply(m, result{info: s.snapshot(), err: ErrClosed})
		default:
			return
		}
	}
}

func (s *Supervisor) handleStart(cfg *Config) result {
	if !s.state.Terminal() {
		// Duplicate or mistimed start: idempotent no-op.
		return result{info: s.snapshot()}
	}
	if cfg != nil {
		cfg.ID = s.id // the registry owns the id; config cannot rename it
		s.cfg = *cfg
		if s.history.Capacity() != s.cfg.HistorySize {
			s.history = console.NewHistory(s.cfg.HistorySize)
		}
	}

	cmd := exec.Command(s.cfg.Executable, s.cfg.Args...)
	cmd.Dir = s.cfg.WorkDir
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	setProcAttrs(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return result{info: s.snapshot(), err: &SpawnError{ID: s.cfg.ID, Err: err}}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return result{info: s.snapshot(), err: &SpawnError{ID: s.cfg.ID, Err: err}}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return result{info: s.snapshot(), err: &SpawnError{ID: s.cfg.ID, Err: err}}
	}

	if err := cmd.Start(); err != nil {
		s.transition(StateCrashed, -1)
		return result{info: s.snapshot(), err: &SpawnError{ID: s.cfg.ID, Err: err}}
	}

	s.cmd = cmd
	s.stdin = stdin
	s.pid = cmd.Process.Pid
	s.killReq = false
	s.players = make(map[string]struct{})
	if w, err := s.cfg.Capture.Writer(s.cfg.ID); err == nil {
		s.capture = w
	}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go s.pump(stdout, &pumps)
	go s.pump(stderr, &pumps)
	go func() {
		// Single waiter: pumps drain the pipes, then Wait reaps.
		pumps.Wait()
		s.post(message{kind: msgExit, err: cmd.Wait()})
	}()

	s.mu.Lock()
	s.info.PID = s.pid
	s.info.StartedAt = time.Now()
	s.mu.Unlock()
	s.transition(StateStarting, 0)
	metrics.IncStart(s.cfg.ID)

	s.gen++
	gen := s.gen
	time.AfterFunc(s.cfg.ReadyTimeout, func() {
		s.post(message{kind: msgReadyTimeout, gen: gen})
	})
	return result{info: s.snapshot()}
}

func (s *Supervisor) handleStop() result {
	if s.state != StateRunning {
		// Already stopping, stopped, or never ready: idempotent no-op, so
		// duplicate stops arm exactly one instruction and one timer pair.
		return result{info: s.snapshot()}
	}
	s.writeStdin(s.cfg.StopCommand)
	s.transition(StateStopping, 0)

	s.gen++
	gen := s.gen
	time.AfterFunc(s.cfg.StopGrace, func() {
		s.post(message{kind: msgGraceTerm, gen: gen})
	})
	return result{info: s.snapshot()}
}

func (s *Supervisor) handleKill() result {
	if s.state.Terminal() {
		return result{info: s.snapshot()}
	}
	s.killReq = true
	if s.pid > 0 {
		_ = killGroup(s.pid)
		metrics.IncForceKill(s.cfg.ID)
	}
	return result{info: s.snapshot()}
}

func (s *Supervisor) handleSend(text string) result {
	if s.state != StateRunning {
		return result{info: s.snapshot(), err: fmt.Errorf("send to %s: %w (state %s)", s.cfg.ID, ErrNotRunning, s.state)}
	}
	if err := s.writeStdin(text); err != nil {
		return result{info: s.snapshot(), err: fmt.Errorf("send to %s: %w", s.cfg.ID, err)}
	}
	return result{info: s.snapshot()}
}

func (s *Supervisor) handleLine(text string) {
	line := s.history.Push(text)
	if s.capture != nil {
		_, _ = s.capture.Write(append([]byte(text), '\n'))
	}
	metrics.IncConsoleLines(s.cfg.ID)
	if s.events.Console != nil {
		s.events.Console(event.Console{ServerID: s.cfg.ID, Text: line.Text, At: line.At})
	}

	switch ev := s.cfg.Classifier.Classify(text); ev.Kind {
	case classify.Ready:
		if s.state == StateStarting {
			s.gen++ // disarm the fallback timer
			s.transition(StateRunning, 0)
		}
	case classify.PlayerJoined:
		if ev.Player != "" && (s.state == StateRunning || s.state == StateStarting) {
			s.players[ev.Player] = struct{}{}
			s.emitPlayers()
		}
	case classify.PlayerLeft:
		if ev.Player != "" {
			if _, ok := s.players[ev.Player]; ok {
				delete(s.players, ev.Player)
				s.emitPlayers()
			}
		}
	}
}

func (s *Supervisor) handleExit(err error) {
	s.gen++ // disarm any pending ready/grace timers
	code := exitCode(err)
	s.closeWriters()
	s.cmd = nil

	var to State
	switch {
	case s.state == StateStopping, s.killReq:
		to = StateStopped
		metrics.IncStop(s.cfg.ID)
	default:
		// Exit while starting or running was never requested: a crash,
		// regardless of exit code.
		to = StateCrashed
		metrics.IncCrash(s.cfg.ID)
	}
	if len(s.players) > 0 {
		s.players = make(map[string]struct{})
		s.emitPlayers()
	}
	s.transition(to, code)
}

func (s *Supervisor) writeStdin(text string) error {
	if s.stdin == nil {
		return fmt.Errorf("stdin closed")
	}
	_, err := s.stdin.Write(encodeLine(s.cfg.StdinEncoding, text))
	return err
}

func (s *Supervisor) closeWriters() {
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	if s.capture != nil {
		_ = s.capture.Close()
		s.capture = nil
	}
}

// pump reads one output stream line-by-line into the message queue.
func (s *Supervisor) pump(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		s.post(message{kind: msgLine, text: sc.Text()})
	}
}

// transition moves the state machine, updates the published snapshot, and
// emits the status event synchronously.
func (s *Supervisor) transition(to State, code int) {
	from := s.state
	if from == to {
		return
	}
	s.state = to

	s.mu.Lock()
	s.info.State = to
	s.info.ExitCode = code
	if to.Terminal() {
		s.info.PID = 0
		s.info.Players = nil
		s.info.PlayerCount = 0
	}
	waiters := append([]chan State(nil), s.waiters...)
	s.mu.Unlock()

	metrics.RecordStateTransition(s.cfg.ID, from.String(), to.String())
	if s.events.Status != nil {
		s.events.Status(event.Status{
			ServerID: s.cfg.ID,
			From:     from.String(),
			To:       to.String(),
			PID:      s.pid,
			ExitCode: code,
			At:       time.Now(),
		})
	}
	for _, ch := range waiters {
		select {
		case ch <- to:
		default:
		}
	}
}

func (s *Supervisor) emitPlayers() {
	names := make([]string, 0, len(s.players))
	for n := range s.players {
		names = append(names, n)
	}
	sort.Strings(names)

	s.mu.Lock()
	s.info.Players = names
	s.info.PlayerCount = len(names)
	s.mu.Unlock()

	metrics.SetOnlinePlayers(s.cfg.ID, len(names))
	if s.events.Players != nil {
		s.events.Players(event.Players{
			ServerID: s.cfg.ID,
			Count:    len(names),
			Names:    append([]string(nil), names...),
			At:       time.Now(),
		})
	}
}

func (s *Supervisor) snapshot() RuntimeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := s.info
	info.Players = append([]string(nil), s.info.Players...)
	return info
}

func (s *Supervisor) subscribe() chan State {
	ch := make(chan State, 8)
	s.mu.Lock()
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()
	return ch
}

func (s *Supervisor) unsubscribe(ch chan State) {
	s.mu.Lock()
	for i, w := range s.waiters {
		if w == ch {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

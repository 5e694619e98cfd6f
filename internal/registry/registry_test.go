//go:build !windows

package registry

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawnkit/spawnd/internal/classify"
	"github.com/spawnkit/spawnd/internal/event"
	"github.com/spawnkit/spawnd/internal/history"
	"github.com/spawnkit/spawnd/internal/supervisor"
)

const readyScript = `echo "Done (0.1s)!"
while read line; do
  if [ "$line" = "stop" ]; then exit 0; fi
done`

func testConfig(id, script string) supervisor.Config {
	return supervisor.Config{
		ID:           id,
		Executable:   "/bin/sh",
		Args:         []string{"-c", script},
		Classifier:   classify.Default(),
		ReadyTimeout: 5 * time.Second,
		StopGrace:    300 * time.Millisecond,
		KillGrace:    300 * time.Millisecond,
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(nil)
	t.Cleanup(func() { r.ShutdownAll(2 * time.Second) })
	return r
}

func running(st supervisor.State) bool { return st == supervisor.StateRunning }

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(testConfig("alpha", readyScript)))
	require.Error(t, r.Register(testConfig("alpha", readyScript)), "duplicate id must be rejected")
	require.Error(t, r.Register(testConfig("", readyScript)))
	assert.Equal(t, []string{"alpha"}, r.IDs())
}

func TestUnknownServer(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Start("ghost")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Stop("ghost")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Status("ghost")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.History("ghost")
	require.ErrorIs(t, err, ErrNotFound)
	err = r.SendCommand("ghost", "x")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Unregister("ghost"), ErrNotFound)
}

func TestStartRefusedWhenPortBound(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	port := l.Addr().(*net.TCPAddr).Port

	r := newTestRegistry(t)
	cfg := testConfig("bound", readyScript)
	cfg.Port = port
	require.NoError(t, r.Register(cfg))

	_, err = r.Start("bound")
	require.ErrorIs(t, err, ErrPortInUse)
	info, err := r.Status("bound")
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateStopped, info.State)

	// Releasing the port makes the same start succeed.
	require.NoError(t, l.Close())
	_, err = r.Start("bound")
	require.NoError(t, err)
	_, err = r.Await("bound", running, 3*time.Second)
	require.NoError(t, err)
}

func TestLifecycleAndEventFanOut(t *testing.T) {
	r := newTestRegistry(t)

	var mu sync.Mutex
	var statuses []event.Status
	var consoles []event.Console
	r.OnStatus(func(e event.Status) { mu.Lock(); statuses = append(statuses, e); mu.Unlock() })
	r.OnConsole(func(e event.Console) { mu.Lock(); consoles = append(consoles, e); mu.Unlock() })

	require.NoError(t, r.Register(testConfig("survival", readyScript)))
	info, err := r.Start("survival")
	require.NoError(t, err)
	assert.Equal(t, "survival", info.ServerID)

	_, err = r.Await("survival", running, 3*time.Second)
	require.NoError(t, err)

	_, err = r.Stop("survival")
	require.NoError(t, err)
	_, err = r.Await("survival", supervisor.State.Terminal, 3*time.Second)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.Equal(t, "survival", s.ServerID)
	}
	assert.Equal(t, "starting", statuses[0].To)
	assert.Equal(t, "stopped", statuses[len(statuses)-1].To)
	require.NotEmpty(t, consoles)
	assert.Equal(t, "survival", consoles[0].ServerID)
}

func TestConcurrentDistinctServers(t *testing.T) {
	r := newTestRegistry(t)
	ids := []string{"one", "two", "three"}
	for _, id := range ids {
		require.NoError(t, r.Register(testConfig(id, readyScript)))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := r.Start(id)
			assert.NoError(t, err)
			_, err = r.Await(id, running, 3*time.Second)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	infos := r.StatusAll()
	require.Len(t, infos, 3)
	assert.Equal(t, "one", infos[0].ServerID)
	assert.Equal(t, "three", infos[1].ServerID)
	assert.Equal(t, "two", infos[2].ServerID)
	for _, info := range infos {
		assert.Equal(t, supervisor.StateRunning, info.State)
	}
}

type memorySink struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memorySink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) types() []history.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func TestHistorySinkReceivesLifecycle(t *testing.T) {
	r := newTestRegistry(t)
	sink := &memorySink{}
	r.SetHistorySinks(sink)

	require.NoError(t, r.Register(testConfig("tracked", readyScript)))
	_, err := r.Start("tracked")
	require.NoError(t, err)
	_, err = r.Await("tracked", running, 3*time.Second)
	require.NoError(t, err)
	_, err = r.Stop("tracked")
	require.NoError(t, err)
	_, err = r.Await("tracked", supervisor.State.Terminal, 3*time.Second)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.types()) >= 3
	}, 3*time.Second, 20*time.Millisecond)
	got := sink.types()
	assert.Equal(t, []history.EventType{history.EventStart, history.EventReady, history.EventStop}, got[:3])
}

func TestShutdownAllEscalates(t *testing.T) {
	// Both servers ignore the stop command and SIGTERM.
	stubborn := `trap '' TERM
echo "Done (0.1s)!"
while true; do sleep 0.05; done`
	r := New(nil)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, r.Register(testConfig(id, stubborn)))
		_, err := r.Start(id)
		require.NoError(t, err)
		_, err = r.Await(id, running, 3*time.Second)
		require.NoError(t, err)
	}

	begin := time.Now()
	r.ShutdownAll(400 * time.Millisecond)
	assert.Less(t, time.Since(begin), 10*time.Second)
}

func TestUnregisterTerminatesServer(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(testConfig("gone", readyScript)))
	_, err := r.Start("gone")
	require.NoError(t, err)
	require.NoError(t, r.Unregister("gone"))
	assert.Empty(t, r.IDs())
	_, err = r.Status("gone")
	require.ErrorIs(t, err, ErrNotFound)
}

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHasCommands(t *testing.T) {
	root := buildRoot()
	want := []string{"serve", "validate", "list", "status", "start", "stop", "restart", "kill", "send", "console"}
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, w := range want {
		assert.True(t, names[w], "missing command %q", w)
	}
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spawnd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[servers]]
id = "ok"
executable = "/bin/true"
`), 0o644))

	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"validate", "--config", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "1 server(s)")

	root = buildRoot()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"validate", "--config", filepath.Join(t.TempDir(), "missing.toml")})
	require.Error(t, root.Execute())
}

func TestAPIClientErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/servers":
			_, _ = w.Write([]byte(`[]`))
		case "/servers/ghost":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"server ghost: server not found"}`))
		default:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	t.Cleanup(srv.Close)

	c := NewAPIClient(srv.URL, time.Second)
	assert.True(t, c.IsReachable())

	raw, err := c.List()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	_, err = c.Status("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server not found")

	require.NoError(t, c.SendCommand("any", "say hi"))
}

func TestAPIClientUnreachable(t *testing.T) {
	c := NewAPIClient("http://127.0.0.1:1", 200*time.Millisecond)
	assert.False(t, c.IsReachable())
}

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIdempotent(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	require.NoError(t, Register(prometheus.NewRegistry()))
}

func TestHelpersAfterRegister(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))

	IncStart("mc-1")
	IncStop("mc-1")
	IncCrash("mc-1")
	IncForceKill("mc-1")
	RecordStateTransition("mc-1", "stopped", "starting")
	SetOnlinePlayers("mc-1", 3)
	IncConsoleLines("mc-1")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "spawnd_server_starts_total")
	assert.Contains(t, rec.Body.String(), "spawnd_server_current_state")
}

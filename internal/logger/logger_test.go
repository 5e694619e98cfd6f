package logger

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureDisabled(t *testing.T) {
	var c CaptureConfig
	assert.False(t, c.Enabled())
	w, err := c.Writer("mc-1")
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestCaptureWriterFromDir(t *testing.T) {
	dir := t.TempDir()
	c := CaptureConfig{Dir: dir}
	w, err := c.Writer("mc-1")
	require.NoError(t, err)
	require.NotNil(t, w)
	defer func() { _ = w.Close() }()

	n, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	assert.FileExists(t, filepath.Join(dir, "mc-1.console.log"))
}

func TestCaptureExplicitPathOverridesDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.log")
	c := CaptureConfig{Dir: dir, Path: path}
	w, err := c.Writer("mc-1")
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestSetupLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		l := Setup(lvl, false)
		require.NotNil(t, l)
	}
	l := Setup("info", true)
	assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, Setup("warn", false).Enabled(context.Background(), slog.LevelDebug))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "PORT", "STRICT_PARAMS", "UPDATE_PRESERVES_DELETED", "WS_PONG_WAIT", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory://", cfg.Database.URL)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.True(t, cfg.Notes.StrictParams)
	assert.False(t, cfg.Notes.UpdatePreservesDeleted)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, "auto", cfg.Logging.Format)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:///tmp/notes.db")
	t.Setenv("STRICT_PARAMS", "false")
	t.Setenv("UPDATE_PRESERVES_DELETED", "true")
	t.Setenv("WS_PONG_WAIT", "10s")
	t.Setenv("WS_MAX_CONNECTIONS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite:///tmp/notes.db", cfg.Database.URL)
	assert.False(t, cfg.Notes.StrictParams)
	assert.True(t, cfg.Notes.UpdatePreservesDeleted)
	assert.Equal(t, 9*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, 100, cfg.WebSocket.MaxConnections)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("duration", func(t *testing.T) {
		t.Setenv("SHUTDOWN_TIMEOUT", "soon")
		_, err := Load()
		assert.ErrorContains(t, err, "SHUTDOWN_TIMEOUT")
	})

	t.Run("bool", func(t *testing.T) {
		t.Setenv("STRICT_PARAMS", "maybe")
		_, err := Load()
		assert.ErrorContains(t, err, "STRICT_PARAMS")
	})
}

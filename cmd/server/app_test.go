package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"note-history-server/internal/config"
	"note-history-server/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestConfig(t *testing.T, databaseURL string) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", databaseURL)
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestApp_ServesNotesAndEvents(t *testing.T) {
	cfg := loadTestConfig(t, "memory://")
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(a.server.Handler)
	defer srv.Close()
	defer a.shutdown(context.Background())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Events are only delivered once the client is registered.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	resp, err = http.Post(srv.URL+"/create", "application/json", strings.NewReader(`{"title":"t","content":"c"}`))
	require.NoError(t, err)
	var created domain.NoteVersion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(1), created.ID)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		Type    string             `json:"type"`
		Payload domain.NoteVersion `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "note_created", event.Type)
	assert.Equal(t, created.ID, event.Payload.ID)
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", strconv.Itoa(port))
	cfg := loadTestConfig(t, "sqlite://"+filepath.Join(t.TempDir(), "notes.db"))

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Addr() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestNewApp_RejectsUnknownStore(t *testing.T) {
	cfg := loadTestConfig(t, "mysql://root@localhost/notes")
	_, err := newApp(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

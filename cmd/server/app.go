package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"note-history-server/internal/config"
	"note-history-server/internal/handler"
	"note-history-server/internal/repository"
	"note-history-server/internal/service"
	"note-history-server/internal/websocket"

	"github.com/rs/zerolog"
)

// app holds everything main starts and must stop again, in order.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  repository.NoteVersionRepository
	server *http.Server
	stopWS context.CancelFunc
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	store, err := repository.Open(ctx, cfg.Database.URL, log)
	if err != nil {
		return nil, fmt.Errorf("open note store: %w", err)
	}

	wsManager := websocket.NewManager(websocket.ManagerOptions{
		MaxConnections: cfg.WebSocket.MaxConnections,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
	}, log)

	wsCtx, stopWS := context.WithCancel(context.Background())
	go wsManager.Run(wsCtx)

	noteService := service.NewNoteService(store, wsManager, service.NoteServiceOptions{
		StrictParams:            cfg.Notes.StrictParams,
		PreserveDeletedOnUpdate: cfg.Notes.UpdatePreservesDeleted,
	})

	noteHandler := handler.NewNoteHandler(noteService)
	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize)

	return &app{
		cfg:   cfg,
		log:   log,
		store: store,
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler.NewRouter(noteHandler, wsHandler, log, cfg.CORS),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		stopWS: stopWS,
	}, nil
}

// serve blocks until ctx is cancelled or the listener fails, then shuts down.
func (a *app) serve(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		a.log.Info().
			Str("addr", a.server.Addr).
			Str("env", a.cfg.Server.Env).
			Bool("strict_params", a.cfg.Notes.StrictParams).
			Bool("update_preserves_deleted", a.cfg.Notes.UpdatePreservesDeleted).
			Msg("starting note history server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	a.log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if shutdownErr := a.shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// shutdown stops HTTP first so no request writes to a closed store.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	a.stopWS()

	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close note store: %w", err))
	}
	return errors.Join(errs...)
}

package handler

import (
	"net/http"

	"note-history-server/internal/config"
	"note-history-server/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// NewRouter wires the note routes, health and websocket endpoints behind the
// access log and CORS middleware. ws may be nil.
func NewRouter(notes *NoteHandler, ws *WebSocketHandler, log zerolog.Logger, cors config.CORSConfig) *mux.Router {
	r := mux.NewRouter()

	chain := []mux.MiddlewareFunc{
		middleware.LoggerMiddleware(log),
		middleware.CORSMiddleware(
			cors.AllowedOrigins,
			cors.AllowedMethods,
			cors.AllowedHeaders,
		),
	}
	r.Use(chain...)

	// mux skips r.Use middleware for unmatched requests.
	r.NotFoundHandler = wrap(http.HandlerFunc(NotFound), chain)
	r.MethodNotAllowedHandler = wrap(http.HandlerFunc(MethodNotAllowed), chain)

	notes.RegisterRoutes(r)

	if ws != nil {
		r.HandleFunc("/ws", ws.HandleConnection).Methods(http.MethodGet)
	}

	r.HandleFunc("/health", Health).Methods(http.MethodGet)

	return r
}

// wrap applies chain in r.Use order: the first entry is outermost.
func wrap(h http.Handler, chain []mux.MiddlewareFunc) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

package handler

import (
	"net/http"

	"note-history-server/internal/middleware"
	"note-history-server/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	upgrader ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, readBufferSize, writeBufferSize int) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The client id is the request id, so its websocket log lines join the
	// access log line of the upgrade.
	clientID := middleware.GetRequestID(r)
	if clientID == "" {
		clientID = uuid.New().String()
	}

	client := websocket.NewClient(clientID, conn, h.manager)
	if !h.manager.Register(client) {
		conn.Close()
		return
	}

	log.Debug().Str("client_id", client.ID).Msg("websocket connected")

	client.Serve()
}

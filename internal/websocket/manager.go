package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"note-history-server/internal/domain"

	"github.com/rs/zerolog"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type ManagerOptions struct {
	MaxConnections int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

// Manager tracks connected clients and fans note change events out to all
// of them. Client bookkeeping happens on the Run goroutine only.
type Manager struct {
	clients        map[string]*Client
	clientsMutex   sync.RWMutex
	register       chan *Client
	unregisterCh   chan *Client
	handleMessage  chan *ClientMessage
	broadcast      chan []byte
	done           chan struct{}
	maxConnections int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	log            zerolog.Logger
}

func NewManager(opts ManagerOptions, log zerolog.Logger) *Manager {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 65536
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}

	return &Manager{
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregisterCh:   make(chan *Client),
		handleMessage:  make(chan *ClientMessage),
		broadcast:      make(chan []byte, 256),
		done:           make(chan struct{}),
		maxConnections: opts.MaxConnections,
		maxMessageSize: opts.MaxMessageSize,
		writeWait:      opts.WriteWait,
		pongWait:       opts.PongWait,
		pingPeriod:     opts.PingPeriod,
		log:            log.With().Str("component", "websocket").Logger(),
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregisterCh:
			m.unregisterClient(client)

		case clientMsg := <-m.handleMessage:
			m.processMessage(clientMsg)

		case message := <-m.broadcast:
			m.broadcastMessage(message)
		}
	}
}

// Register hands client to the Run loop. It reports false once the manager
// has stopped.
func (m *Manager) Register(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.unregisterCh <- client:
	case <-m.done:
	}
}

func (m *Manager) handle(msg *ClientMessage) bool {
	select {
	case m.handleMessage <- msg:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.maxConnections > 0 && len(m.clients) >= m.maxConnections {
		m.log.Warn().Str("client_id", client.ID).Int("max", m.maxConnections).Msg("max websocket connections reached")
		close(client.send)
		return
	}

	if _, taken := m.clients[client.ID]; taken {
		m.log.Warn().Str("client_id", client.ID).Msg("duplicate websocket client id")
		close(client.send)
		return
	}

	m.clients[client.ID] = client
	m.log.Debug().Str("client_id", client.ID).Int("clients", len(m.clients)).Msg("client registered")
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	m.removeLocked(client)
}

func (m *Manager) removeLocked(client *Client) {
	if current, ok := m.clients[client.ID]; ok && current == client {
		delete(m.clients, client.ID)
		close(client.send)
		m.log.Debug().Str("client_id", client.ID).Msg("client unregistered")
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for _, client := range m.clients {
		m.removeLocked(client)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.log.Debug().Err(err).Str("client_id", clientMsg.Client.ID).Msg("invalid websocket message")
		m.reply(clientMsg.Client, TypeError, &ErrorPayload{Error: "invalid message"})
		return
	}

	switch msg.Type {
	case TypePing:
		m.reply(clientMsg.Client, TypePong, nil)
	default:
		m.reply(clientMsg.Client, TypeError, &ErrorPayload{Error: "unsupported message type: " + string(msg.Type)})
	}
}

func (m *Manager) reply(client *Client, msgType MessageType, payload interface{}) {
	bytes, err := encodeMessage(msgType, payload)
	if err != nil {
		m.log.Error().Err(err).Msg("build websocket reply")
		return
	}

	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if current, ok := m.clients[client.ID]; !ok || current != client {
		return
	}
	select {
	case client.send <- bytes:
	default:
		m.log.Warn().Str("client_id", client.ID).Msg("send buffer full, closing connection")
		m.removeLocked(client)
	}
}

func (m *Manager) broadcastMessage(message []byte) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for _, client := range m.clients {
		select {
		case client.send <- message:
		default:
			m.log.Warn().Str("client_id", client.ID).Msg("send buffer full, closing connection")
			m.removeLocked(client)
		}
	}
}

// PublishNoteVersion queues a change event for every connected client. It
// never blocks; events are dropped when the queue is full or the manager
// has stopped.
func (m *Manager) PublishNoteVersion(event domain.NoteEvent, note *domain.NoteVersion) {
	bytes, err := encodeMessage(MessageType(event), note)
	if err != nil {
		m.log.Error().Err(err).Int64("note_id", note.ID).Msg("build note event")
		return
	}

	select {
	case <-m.done:
		return
	default:
	}

	select {
	case m.broadcast <- bytes:
	default:
		m.log.Warn().Str("event", string(event)).Int64("note_id", note.ID).Msg("event queue full, dropping")
	}
}

func (m *Manager) ClientCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.clients)
}

package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const sendBuffer = 256

// Client is one subscriber connection. The manager owns its send channel
// and closes it on unregister, which ends writeLoop.
type Client struct {
	ID      string
	conn    *websocket.Conn
	manager *Manager
	send    chan []byte
}

func NewClient(id string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		manager: manager,
		send:    make(chan []byte, sendBuffer),
	}
}

// Serve starts the connection loops and returns immediately.
func (c *Client) Serve() {
	go c.writeLoop()
	go c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.manager.unregister(c)
		c.conn.Close()
	}()

	keepAlive := func() { c.conn.SetReadDeadline(time.Now().Add(c.manager.pongWait)) }

	c.conn.SetReadLimit(c.manager.maxMessageSize)
	keepAlive()
	c.conn.SetPongHandler(func(string) error {
		keepAlive()
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.log.Warn().Err(err).Str("client_id", c.ID).Msg("websocket read failed")
			}
			return
		}

		if !c.manager.handle(&ClientMessage{Client: c, Message: frame}) {
			return
		}
	}
}

func (c *Client) writeLoop() {
	heartbeat := time.NewTicker(c.manager.pingPeriod)
	defer func() {
		heartbeat.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind    = websocket.TextMessage
			payload []byte
		)

		select {
		case frame, open := <-c.send:
			if !open {
				kind = websocket.CloseMessage
			}
			payload = frame

		case <-heartbeat.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(c.manager.writeWait))
		if err := c.conn.WriteMessage(kind, payload); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}

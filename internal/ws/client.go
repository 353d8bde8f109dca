package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	sendQueueSize = 32
)

// Inbound is the flat client-to-server frame shape.
type Inbound struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	TmdbID int64  `json:"tmdb_id,omitempty"`
	Action string `json:"action,omitempty"`
}

// Handler processes one inbound frame from a room client.
type Handler func(c *Client, msg Inbound)

// Client couples one websocket connection to a room.
type Client struct {
	RoomCode  string
	SessionID string

	hub     *Hub
	conn    *websocket.Conn
	send    chan Event
	handler Handler
	onClose func()

	mu     sync.Mutex
	closed bool
}

// OnClose registers a callback invoked after the client disconnects and has
// been unregistered.
func (c *Client) OnClose(fn func()) {
	c.onClose = fn
}

func NewClient(hub *Hub, conn *websocket.Conn, code, sessionID string, handler Handler) *Client {
	return &Client{
		RoomCode:  code,
		SessionID: sessionID,
		hub:       hub,
		conn:      conn,
		send:      make(chan Event, sendQueueSize),
		handler:   handler,
	}
}

// Send queues an event for this client only. Returns false when the queue is
// full or already closed.
func (c *Client) Send(event Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Start runs the read and write pumps. Returns immediately; the pumps own
// the connection from here on.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Inbound
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			c.Send(Event{Type: EventError, Data: map[string]any{"detail": "invalid message"}})
			continue
		}
		if c.handler != nil {
			c.handler(c, msg)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

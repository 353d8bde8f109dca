// Package ws pushes room lifecycle events to connected browsers.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event types sent to room clients.
const (
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventUserReady      = "user_ready"
	EventStartVoting    = "start_voting"
	EventMatchFound     = "match_found"
	EventVotingFinished = "voting_finished"
	EventError          = "error"
)

// Event is one server-to-client frame. On the wire the payload is flattened
// next to the type: {"type":"user_joined","session_id":...}.
type Event struct {
	Type string
	Data map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	frame := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		frame[k] = v
	}
	frame["type"] = e.Type
	return json.Marshal(frame)
}

// Hub fans events out to the clients of each room. Rooms are keyed by their
// join code and disappear when the last client leaves.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	logger *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]bool),
		logger: logger,
	}
}

// Register adds a client to its room's broadcast set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.RoomCode]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[c.RoomCode] = room
	}
	room[c] = true
	count := len(room)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"room":    c.RoomCode,
		"clients": count,
	}).Debug("Room client connected")
}

// Unregister removes a client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	room, ok := h.rooms[c.RoomCode]
	if !ok || !room[c] {
		return
	}
	delete(room, c)
	c.closeSend()
	if len(room) == 0 {
		delete(h.rooms, c.RoomCode)
	}
}

// Broadcast delivers an event to every client in the room. Clients whose send
// queue is full are dropped rather than allowed to stall the room.
func (h *Hub) Broadcast(code string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stalled []*Client
	for c := range h.rooms[code] {
		select {
		case c.send <- event:
		default:
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		h.logger.WithFields(logrus.Fields{
			"room":    code,
			"session": c.SessionID,
		}).Warn("Dropping slow room client")
		h.removeLocked(c)
	}
}

// BroadcastExcept is Broadcast minus one session, for events the acting
// client already knows about.
func (h *Hub) BroadcastExcept(code, sessionID string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stalled []*Client
	for c := range h.rooms[code] {
		if c.SessionID == sessionID {
			continue
		}
		select {
		case c.send <- event:
		default:
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		h.removeLocked(c)
	}
}

// CloseRoom disconnects every client of a room, e.g. after voting finished
// or the room was reaped.
func (h *Hub) CloseRoom(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[code]
	if !ok {
		return
	}
	for c := range room {
		c.closeSend()
	}
	delete(h.rooms, code)
}

// ClientCount reports how many clients a room currently has.
func (h *Hub) ClientCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

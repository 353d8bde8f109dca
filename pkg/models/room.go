package models

import "time"

// Room lifecycle. Transitions only move forward: waiting -> voting -> finished.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusVoting   RoomStatus = "voting"
	RoomStatusFinished RoomStatus = "finished"
)

// Swipe actions.
type RoomAction string

const (
	RoomActionLike      RoomAction = "like"
	RoomActionDislike   RoomAction = "dislike"
	RoomActionSuperlike RoomAction = "superlike"
)

// ParseRoomAction maps the wire form ("LIKE", "dislike", ...) to a RoomAction.
func ParseRoomAction(s string) (RoomAction, bool) {
	switch RoomAction(normalizeLower(s)) {
	case RoomActionLike:
		return RoomActionLike, true
	case RoomActionDislike:
		return RoomActionDislike, true
	case RoomActionSuperlike:
		return RoomActionSuperlike, true
	}
	return "", false
}

func normalizeLower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// Room is an ephemeral swipe session identified by a 6-char code.
type Room struct {
	ID               int64      `json:"id"`
	Code             string     `json:"code"`
	CreatorSessionID string     `json:"creator_session_id"`
	Status           RoomStatus `json:"status"`
	ContentType      string     `json:"content_type"` // movie, tv or mixed
	MaxParticipants  int        `json:"max_participants"`
	DurationMinutes  int        `json:"duration_minutes"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsCreator reports whether the given session created this room.
func (r *Room) IsCreator(sessionID string) bool {
	return r.CreatorSessionID == sessionID
}

// RoomParticipant tracks one anonymous session inside a room.
// IsReady implies a mood has been submitted.
type RoomParticipant struct {
	RoomID    int64     `json:"room_id"`
	SessionID string    `json:"session_id"`
	Mood      string    `json:"mood,omitempty"`
	IsReady   bool      `json:"is_ready"`
	JoinedAt  time.Time `json:"joined_at"`
}

// RoomInteraction is one swipe. First write wins per (room, session, tmdb).
type RoomInteraction struct {
	RoomID    int64      `json:"room_id"`
	SessionID string     `json:"session_id"`
	TmdbID    int64      `json:"tmdb_id"`
	Action    RoomAction `json:"action"`
	CreatedAt time.Time  `json:"created_at"`
}

// RoomMatch records a title the room agreed on. At most one per (room, tmdb).
type RoomMatch struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	TmdbID    int64     `json:"tmdb_id"`
	CreatedAt time.Time `json:"created_at"`
}

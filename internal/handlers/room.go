package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/internal/metrics"
	"github.com/mooviq/mooviq/internal/services"
	"github.com/mooviq/mooviq/internal/validation"
	"github.com/mooviq/mooviq/internal/ws"
	"github.com/mooviq/mooviq/pkg/models"
)

const (
	defaultMaxParticipants = 4
	defaultDurationMinutes = 30

	// closeGrace lets the final broadcast drain before the room is torn down.
	closeGrace = 500 * time.Millisecond

	wsActionTimeout = 10 * time.Second
)

type RoomHandler struct {
	rooms     *services.RoomService
	hub       *ws.Hub
	validator *validation.SchemaValidator
	logger    *logrus.Logger
	upgrader  websocket.Upgrader
}

func NewRoomHandler(
	rooms *services.RoomService,
	hub *ws.Hub,
	validator *validation.SchemaValidator,
	logger *logrus.Logger,
) *RoomHandler {
	return &RoomHandler{
		rooms:     rooms,
		hub:       hub,
		validator: validator,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Room codes are unguessable enough for anonymous sessions;
			// origin policy is left to the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type roomCreateRequest struct {
	ContentType      string `json:"content_type"`
	MaxParticipants  int    `json:"max_participants"`
	DurationMinutes  int    `json:"duration_minutes"`
	CreatorSessionID string `json:"creator_session_id"`
}

// Create opens a new room.
func (h *RoomHandler) Create(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if result := h.validator.ValidateRoomCreate(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var req roomCreateRequest
	if !bindJSON(c, body, &req) {
		return
	}
	if req.MaxParticipants == 0 {
		req.MaxParticipants = defaultMaxParticipants
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = defaultDurationMinutes
	}

	room, err := h.rooms.Create(c.Request.Context(), req.CreatorSessionID, req.ContentType, req.MaxParticipants, req.DurationMinutes)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidRoomAction) {
			c.JSON(http.StatusBadRequest, internalError("INVALID_ROOM", err.Error()))
			return
		}
		h.logger.WithError(err).Error("Failed to create room")
		c.JSON(http.StatusInternalServerError, internalError("ROOM_CREATE_FAILED", "Failed to create room"))
		return
	}
	c.JSON(http.StatusCreated, room)
}

// Get returns the room snapshot by code.
func (h *RoomHandler) Get(c *gin.Context) {
	state, err := h.rooms.State(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, internalError("ROOM_NOT_FOUND", "Room not found"))
			return
		}
		h.logger.WithError(err).Error("Failed to load room")
		c.JSON(http.StatusInternalServerError, internalError("ROOM_FAILED", "Failed to load room"))
		return
	}
	c.JSON(http.StatusOK, state)
}

// Matches returns the recorded matches of a room.
func (h *RoomHandler) Matches(c *gin.Context) {
	state, err := h.rooms.State(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, internalError("ROOM_NOT_FOUND", "Room not found"))
			return
		}
		h.logger.WithError(err).Error("Failed to load room")
		c.JSON(http.StatusInternalServerError, internalError("ROOM_FAILED", "Failed to load room"))
		return
	}

	matches, err := h.rooms.Matches(c.Request.Context(), state.Room.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load room matches")
		c.JSON(http.StatusInternalServerError, internalError("ROOM_FAILED", "Failed to load matches"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// Connect upgrades to the room websocket. Joining happens as part of the
// upgrade; a session the room cannot seat is closed with a policy violation.
func (h *RoomHandler) Connect(c *gin.Context) {
	code := c.Param("code")
	sessionID := c.Query("session_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	if sessionID == "" {
		h.closeWithPolicy(conn, "session_id is required")
		return
	}

	state, err := h.rooms.JoinOrRejoin(c.Request.Context(), sessionID, code)
	if err != nil {
		h.closeWithPolicy(conn, joinErrorDetail(err))
		return
	}

	client := ws.NewClient(h.hub, conn, code, sessionID, h.handleMessage)
	client.OnClose(func() {
		metrics.RoomConnections.Dec()
		h.hub.Broadcast(code, ws.Event{
			Type: ws.EventUserLeft,
			Data: gin.H{"session_id": sessionID},
		})
	})

	h.hub.Register(client)
	metrics.RoomConnections.Inc()
	client.Start()

	h.hub.Broadcast(code, ws.Event{
		Type: ws.EventUserJoined,
		Data: gin.H{
			"session_id":         sessionID,
			"participants_count": len(state.Participants),
		},
	})
}

func joinErrorDetail(err error) string {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return "room not found"
	case errors.Is(err, errs.ErrRoomFull):
		return "room is full"
	case errors.Is(err, errs.ErrRoomAlreadyStarted):
		return "room has already started"
	default:
		return "cannot join room"
	}
}

func (h *RoomHandler) closeWithPolicy(conn *websocket.Conn, detail string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, detail)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

// handleMessage dispatches one inbound frame. State-machine violations go
// back to the offending client only.
func (h *RoomHandler) handleMessage(c *ws.Client, msg ws.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), wsActionTimeout)
	defer cancel()

	switch msg.Type {
	case "submit_mood":
		h.onSubmitMood(ctx, c, msg.Text)
	case "swipe":
		h.onSwipe(ctx, c, msg)
	case "force_start":
		h.onForceStart(ctx, c)
	case "force_finish":
		h.onForceFinish(ctx, c)
	default:
		c.Send(ws.Event{Type: ws.EventError, Data: gin.H{"detail": "unknown message type"}})
	}
}

func (h *RoomHandler) onSubmitMood(ctx context.Context, c *ws.Client, text string) {
	state, err := h.rooms.SubmitMood(ctx, c.SessionID, c.RoomCode, text)
	if err != nil {
		h.sendError(c, err)
		return
	}

	ready := 0
	for _, p := range state.Participants {
		if p.IsReady {
			ready++
		}
	}
	h.hub.Broadcast(c.RoomCode, ws.Event{
		Type: ws.EventUserReady,
		Data: gin.H{
			"session_id":  c.SessionID,
			"all_ready":   ready == len(state.Participants),
			"ready_count": ready,
			"total_count": len(state.Participants),
		},
	})

	// Everyone ready starts voting without waiting for the creator.
	if ready == len(state.Participants) && len(state.Participants) >= 2 {
		deck, err := h.rooms.StartVoting(ctx, state.Room, state.Participants)
		if err != nil {
			h.sendError(c, err)
			return
		}
		h.broadcastStartVoting(c.RoomCode, state.Room, deck)
	}
}

func (h *RoomHandler) onForceStart(ctx context.Context, c *ws.Client) {
	deck, err := h.rooms.ForceStart(ctx, c.SessionID, c.RoomCode)
	if err != nil {
		h.sendError(c, err)
		return
	}

	state, err := h.rooms.State(ctx, c.RoomCode)
	if err != nil {
		h.sendError(c, err)
		return
	}
	h.broadcastStartVoting(c.RoomCode, state.Room, deck)
}

func (h *RoomHandler) broadcastStartVoting(code string, room *models.Room, deck []models.ContentItem) {
	expires := time.Now().Add(time.Duration(room.DurationMinutes) * time.Minute)
	h.hub.Broadcast(code, ws.Event{
		Type: ws.EventStartVoting,
		Data: gin.H{
			"recommendations": deck,
			"expires_at":      expires.UTC().Format(time.RFC3339),
		},
	})
}

func (h *RoomHandler) onSwipe(ctx context.Context, c *ws.Client, msg ws.Inbound) {
	action, ok := models.ParseRoomAction(msg.Action)
	if !ok {
		c.Send(ws.Event{Type: ws.EventError, Data: gin.H{"detail": "unknown swipe action"}})
		return
	}

	result, err := h.rooms.RecordSwipe(ctx, c.SessionID, c.RoomCode, msg.TmdbID, action)
	if err != nil {
		h.sendError(c, err)
		return
	}

	if result.Match != nil {
		metrics.RoomMatches.Inc()
		h.hub.Broadcast(c.RoomCode, ws.Event{
			Type: ws.EventMatchFound,
			Data: gin.H{"tmdb_id": result.Match.TmdbID},
		})
	}

	if result.AllDone {
		matches, err := h.rooms.Complete(ctx, c.RoomCode)
		if err != nil {
			h.sendError(c, err)
			return
		}
		h.finishRoom(c.RoomCode, matches, "everyone has voted")
	}
}

func (h *RoomHandler) onForceFinish(ctx context.Context, c *ws.Client) {
	matches, err := h.rooms.ForceFinish(ctx, c.SessionID, c.RoomCode)
	if err != nil {
		h.sendError(c, err)
		return
	}
	h.finishRoom(c.RoomCode, matches, "finished by creator")
}

func (h *RoomHandler) finishRoom(code string, matches []models.RoomMatch, detail string) {
	payload := make([]gin.H, 0, len(matches))
	for _, m := range matches {
		payload = append(payload, gin.H{"tmdb_id": m.TmdbID})
	}
	h.hub.Broadcast(code, ws.Event{
		Type: ws.EventVotingFinished,
		Data: gin.H{"matches": payload, "detail": detail},
	})

	go func() {
		time.Sleep(closeGrace)
		h.hub.CloseRoom(code)
	}()
}

func (h *RoomHandler) sendError(c *ws.Client, err error) {
	c.Send(ws.Event{Type: ws.EventError, Data: gin.H{"detail": err.Error()}})
}

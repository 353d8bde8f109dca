package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/pkg/models"
)

const uniqueViolation = "23505"

// RoomStore persists swipe rooms and everything hanging off them. Child rows
// cascade on room deletion.
type RoomStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewRoomStore(db Querier, logger *logrus.Logger) *RoomStore {
	return &RoomStore{db: db, logger: logger}
}

// Create inserts a room. A code collision surfaces as ErrConflict so the
// caller can retry with a fresh code.
func (s *RoomStore) Create(ctx context.Context, room *models.Room) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO rooms (
			code, creator_session_id, status, content_type,
			max_participants, duration_minutes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`,
		room.Code, room.CreatorSessionID, room.Status, room.ContentType,
		room.MaxParticipants, room.DurationMinutes,
	).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return errs.ErrConflict
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// ByCode loads a room by its join code. Codes are only unique among live
// rooms, so the newest room wins when a finished one shares the code.
func (s *RoomStore) ByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := s.db.QueryRow(ctx, `
		SELECT id, code, creator_session_id, status, content_type,
		       max_participants, duration_minutes, created_at
		FROM rooms
		WHERE code = $1
		ORDER BY created_at DESC
		LIMIT 1`, code,
	).Scan(&room.ID, &room.Code, &room.CreatorSessionID, &room.Status,
		&room.ContentType, &room.MaxParticipants, &room.DurationMinutes,
		&room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	return &room, nil
}

// UpdateStatus advances the room state machine.
func (s *RoomStore) UpdateStatus(ctx context.Context, roomID int64, status models.RoomStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE rooms SET status = $2 WHERE id = $1`, roomID, status)
	if err != nil {
		return fmt.Errorf("failed to update room status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// InsertParticipant registers a session while the room still has a free
// seat. The count check and the insert run in one statement so concurrent
// joins cannot overfill the room. Rejoining and a full room both report
// false; returns whether the row was new.
func (s *RoomStore) InsertParticipant(ctx context.Context, roomID int64, sessionID string, maxParticipants int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO room_participants (room_id, session_id, joined_at)
		SELECT $1, $2, NOW()
		WHERE (SELECT COUNT(*) FROM room_participants WHERE room_id = $1) < $3
		ON CONFLICT (room_id, session_id) DO NOTHING`,
		roomID, sessionID, maxParticipants)
	if err != nil {
		return false, fmt.Errorf("failed to insert participant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Participants lists the sessions in join order.
func (s *RoomStore) Participants(ctx context.Context, roomID int64) ([]models.RoomParticipant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT room_id, session_id, COALESCE(mood, ''), is_ready, joined_at
		FROM room_participants
		WHERE room_id = $1
		ORDER BY joined_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []models.RoomParticipant
	for rows.Next() {
		var p models.RoomParticipant
		if err := rows.Scan(&p.RoomID, &p.SessionID, &p.Mood, &p.IsReady, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// SetMood records a participant's mood and marks them ready.
func (s *RoomStore) SetMood(ctx context.Context, roomID int64, sessionID, mood string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE room_participants SET mood = $3, is_ready = true
		WHERE room_id = $1 AND session_id = $2`,
		roomID, sessionID, mood)
	if err != nil {
		return fmt.Errorf("failed to set mood: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetDeck stores the voting deck as a JSON document on the room.
func (s *RoomStore) SetDeck(ctx context.Context, roomID int64, deck []models.ContentItem) error {
	payload, err := json.Marshal(deck)
	if err != nil {
		return fmt.Errorf("failed to encode deck: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE rooms SET deck = $2 WHERE id = $1`, roomID, payload)
	if err != nil {
		return fmt.Errorf("failed to store deck: %w", err)
	}
	return nil
}

// Deck loads the voting deck; nil when voting has not started.
func (s *RoomStore) Deck(ctx context.Context, roomID int64) ([]models.ContentItem, error) {
	var payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT deck FROM rooms WHERE id = $1`, roomID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load deck: %w", err)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var deck []models.ContentItem
	if err := json.Unmarshal(payload, &deck); err != nil {
		return nil, fmt.Errorf("failed to decode deck: %w", err)
	}
	return deck, nil
}

// InsertInteraction records one swipe. The first write per
// (room, session, tmdb) wins; repeats report false.
func (s *RoomStore) InsertInteraction(ctx context.Context, interaction *models.RoomInteraction) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO room_interactions (room_id, session_id, tmdb_id, action, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (room_id, session_id, tmdb_id) DO NOTHING`,
		interaction.RoomID, interaction.SessionID, interaction.TmdbID, interaction.Action)
	if err != nil {
		return false, fmt.Errorf("failed to insert interaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Interactions returns every swipe in a room.
func (s *RoomStore) Interactions(ctx context.Context, roomID int64) ([]models.RoomInteraction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT room_id, session_id, tmdb_id, action, created_at
		FROM room_interactions
		WHERE room_id = $1
		ORDER BY created_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []models.RoomInteraction
	for rows.Next() {
		var i models.RoomInteraction
		if err := rows.Scan(&i.RoomID, &i.SessionID, &i.TmdbID, &i.Action, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, i)
	}
	return interactions, rows.Err()
}

// InsertMatch records a unanimous title, at most once per (room, tmdb).
// Returns whether this call created the match.
func (s *RoomStore) InsertMatch(ctx context.Context, roomID, tmdbID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO room_matches (room_id, tmdb_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (room_id, tmdb_id) DO NOTHING`,
		roomID, tmdbID)
	if err != nil {
		return false, fmt.Errorf("failed to insert match: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Matches lists the unanimous titles of a room in match order.
func (s *RoomStore) Matches(ctx context.Context, roomID int64) ([]models.RoomMatch, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, room_id, tmdb_id, created_at
		FROM room_matches
		WHERE room_id = $1
		ORDER BY created_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []models.RoomMatch
	for rows.Next() {
		var m models.RoomMatch
		if err := rows.Scan(&m.ID, &m.RoomID, &m.TmdbID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteAbandoned removes waiting/voting rooms created before cutoff.
// Participants, interactions and matches cascade with the room.
func (s *RoomStore) DeleteAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM rooms
		WHERE status IN ('waiting', 'voting') AND created_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete abandoned rooms: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeFinished strips session data from finished rooms past cutoff while
// keeping the room row and its matches as a historical record.
func (s *RoomStore) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	if _, err := s.db.Exec(ctx, `
		DELETE FROM room_interactions
		WHERE room_id IN (
			SELECT id FROM rooms WHERE status = 'finished' AND created_at < $1
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge interactions: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM room_participants
		WHERE room_id IN (
			SELECT id FROM rooms WHERE status = 'finished' AND created_at < $1
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge participants: %w", err)
	}
	return tag.RowsAffected(), nil
}

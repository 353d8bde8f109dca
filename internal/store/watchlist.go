package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/pkg/models"
)

// WatchlistStore persists saved titles, including the recommendation
// provenance used to evaluate how well the engine converts.
type WatchlistStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewWatchlistStore(db Querier, logger *logrus.Logger) *WatchlistStore {
	return &WatchlistStore{db: db, logger: logger}
}

// Upsert adds or updates one entry per (user, tmdb, content_type).
func (s *WatchlistStore) Upsert(ctx context.Context, entry *models.WatchlistEntry) error {
	query := `
		INSERT INTO watchlist_entries (
			user_id, tmdb_id, content_type, status,
			from_recommendation, recommendation_type, recommendation_score, added_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id, tmdb_id, content_type) DO UPDATE SET
			status = EXCLUDED.status,
			from_recommendation = EXCLUDED.from_recommendation,
			recommendation_type = EXCLUDED.recommendation_type,
			recommendation_score = EXCLUDED.recommendation_score`

	_, err := s.db.Exec(ctx, query,
		entry.UserID, entry.TmdbID, entry.ContentType, entry.Status,
		entry.FromRecommendation, entry.RecommendationType, entry.RecommendationScore)
	if err != nil {
		return fmt.Errorf("failed to upsert watchlist entry: %w", err)
	}
	return nil
}

// SetStatus moves an entry through to_watch -> watching -> completed.
func (s *WatchlistStore) SetStatus(ctx context.Context, userID, tmdbID int64, contentType, status string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE watchlist_entries SET status = $4
		WHERE user_id = $1 AND tmdb_id = $2 AND content_type = $3`,
		userID, tmdbID, contentType, status)
	if err != nil {
		return fmt.Errorf("failed to update watchlist status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Remove deletes one entry.
func (s *WatchlistStore) Remove(ctx context.Context, userID, tmdbID int64, contentType string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM watchlist_entries
		WHERE user_id = $1 AND tmdb_id = $2 AND content_type = $3`,
		userID, tmdbID, contentType)
	if err != nil {
		return fmt.Errorf("failed to remove watchlist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ByUser lists entries, optionally filtered by status, newest first.
func (s *WatchlistStore) ByUser(ctx context.Context, userID int64, status string) ([]models.WatchlistEntry, error) {
	query := `
		SELECT user_id, tmdb_id, content_type, status,
		       from_recommendation, recommendation_type, recommendation_score, added_at
		FROM watchlist_entries
		WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY added_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var entries []models.WatchlistEntry
	for rows.Next() {
		var e models.WatchlistEntry
		if err := rows.Scan(
			&e.UserID, &e.TmdbID, &e.ContentType, &e.Status,
			&e.FromRecommendation, &e.RecommendationType, &e.RecommendationScore, &e.AddedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

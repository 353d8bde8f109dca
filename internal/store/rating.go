package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/pkg/models"
)

// RatingStore persists explicit user ratings with upsert semantics.
type RatingStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewRatingStore(db Querier, logger *logrus.Logger) *RatingStore {
	return &RatingStore{db: db, logger: logger}
}

// Upsert writes a rating; re-rating the same title overwrites in place.
func (s *RatingStore) Upsert(ctx context.Context, rating *models.UserRating) error {
	query := `
		INSERT INTO user_ratings (user_id, tmdb_id, content_type, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, tmdb_id, content_type) DO UPDATE SET
			rating = EXCLUDED.rating,
			comment = EXCLUDED.comment`

	_, err := s.db.Exec(ctx, query,
		rating.UserID, rating.TmdbID, rating.ContentType, rating.Rating, rating.Comment)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}

// ByUser returns all ratings of one user, newest first.
func (s *RatingStore) ByUser(ctx context.Context, userID int64) ([]models.UserRating, error) {
	query := `
		SELECT user_id, tmdb_id, content_type, rating, comment, created_at
		FROM user_ratings
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	var ratings []models.UserRating
	for rows.Next() {
		var r models.UserRating
		if err := rows.Scan(&r.UserID, &r.TmdbID, &r.ContentType, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// RatedKeys returns the (content_type, tmdb_id) pairs the user already rated,
// used to exclude seen titles from recommendations.
func (s *RatingStore) RatedKeys(ctx context.Context, userID int64) (map[models.ContentKey]bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT content_type, tmdb_id FROM user_ratings WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rated keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[models.ContentKey]bool)
	for rows.Next() {
		var key models.ContentKey
		if err := rows.Scan(&key.ContentType, &key.TmdbID); err != nil {
			return nil, fmt.Errorf("failed to scan rated key: %w", err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

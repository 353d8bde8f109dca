package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/pkg/models"
)

// RecommendationLogStore appends every served recommendation so later
// history-based modes can exclude and learn from them.
type RecommendationLogStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewRecommendationLogStore(db Querier, logger *logrus.Logger) *RecommendationLogStore {
	return &RecommendationLogStore{db: db, logger: logger}
}

// AppendBatch inserts one row per served title. Log failures are reported
// but never fail a recommendation request; the caller only logs them.
func (s *RecommendationLogStore) AppendBatch(ctx context.Context, logs []models.RecommendationLog) error {
	for _, entry := range logs {
		_, err := s.db.Exec(ctx, `
			INSERT INTO recommendation_logs (
				user_id, tmdb_id, content_type, recommendation_type,
				emotion_state, score, viewed, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, false, NOW())`,
			entry.UserID, entry.TmdbID, entry.ContentType,
			entry.RecommendationType, entry.EmotionState, entry.Score)
		if err != nil {
			return fmt.Errorf("failed to append recommendation log: %w", err)
		}
	}
	return nil
}

// RecentByUser returns the latest rows for one user, newest first.
func (s *RecommendationLogStore) RecentByUser(ctx context.Context, userID int64, limit int) ([]models.RecommendationLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, tmdb_id, content_type, recommendation_type,
		       emotion_state, score, viewed, created_at
		FROM recommendation_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendation logs: %w", err)
	}
	defer rows.Close()

	var logs []models.RecommendationLog
	for rows.Next() {
		var entry models.RecommendationLog
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.TmdbID, &entry.ContentType,
			&entry.RecommendationType, &entry.EmotionState, &entry.Score,
			&entry.Viewed, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// MarkViewed flags a served recommendation once the client displays it.
func (s *RecommendationLogStore) MarkViewed(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE recommendation_logs SET viewed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark recommendation viewed: %w", err)
	}
	return nil
}

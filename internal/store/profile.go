package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/pkg/models"
)

// ProfileStore persists the per-user rolling emotional embedding.
type ProfileStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewProfileStore(db Querier, logger *logrus.Logger) *ProfileStore {
	return &ProfileStore{db: db, logger: logger}
}

// Get loads one profile, ErrNoProfile when the user has no rating history.
func (s *ProfileStore) Get(ctx context.Context, userID int64) (*models.EmotionalProfile, error) {
	var profile models.EmotionalProfile
	var tendencies []byte

	err := s.db.QueryRow(ctx, `
		SELECT user_id, embedding, watched_count, confidence, tendencies, last_updated
		FROM emotional_profiles
		WHERE user_id = $1`, userID,
	).Scan(&profile.UserID, &profile.Embedding, &profile.WatchedCount,
		&profile.Confidence, &tendencies, &profile.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNoProfile
		}
		return nil, fmt.Errorf("failed to load emotional profile: %w", err)
	}

	if len(tendencies) > 0 {
		if err := json.Unmarshal(tendencies, &profile.Tendencies); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Discarding unreadable tendencies")
		}
	}
	return &profile, nil
}

// Upsert writes the full profile state.
func (s *ProfileStore) Upsert(ctx context.Context, profile *models.EmotionalProfile) error {
	tendencies, err := json.Marshal(profile.Tendencies)
	if err != nil {
		return fmt.Errorf("failed to encode tendencies: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO emotional_profiles (
			user_id, embedding, watched_count, confidence, tendencies, last_updated
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			watched_count = EXCLUDED.watched_count,
			confidence = EXCLUDED.confidence,
			tendencies = EXCLUDED.tendencies,
			last_updated = NOW()`,
		profile.UserID, profile.Embedding, profile.WatchedCount,
		profile.Confidence, tendencies)
	if err != nil {
		return fmt.Errorf("failed to upsert emotional profile: %w", err)
	}
	return nil
}

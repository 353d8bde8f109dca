package models

import "time"

// UserRating is an explicit rating, unique per (user, tmdb, content_type)
// with upsert semantics.
type UserRating struct {
	UserID      int64     `json:"user_id"`
	TmdbID      int64     `json:"tmdb_id"`
	ContentType string    `json:"content_type"`
	Rating      int       `json:"rating"` // 1..10
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Watchlist statuses.
const (
	WatchlistToWatch   = "to_watch"
	WatchlistWatching  = "watching"
	WatchlistCompleted = "completed"
)

// WatchlistEntry is one saved title, optionally traced back to the
// recommendation that produced it.
type WatchlistEntry struct {
	UserID              int64     `json:"user_id"`
	TmdbID              int64     `json:"tmdb_id"`
	ContentType         string    `json:"content_type"`
	Status              string    `json:"status"`
	FromRecommendation  bool      `json:"from_recommendation"`
	RecommendationType  string    `json:"recommendation_type,omitempty"`
	RecommendationScore float64   `json:"recommendation_score,omitempty"`
	AddedAt             time.Time `json:"added_at"`
}

// EmotionalProfile is the single rolling embedding kept per user.
// Embedding is present iff WatchedCount >= 1 and is always unit length.
// Confidence is min(1, watched_count/20).
type EmotionalProfile struct {
	UserID       int64              `json:"user_id"`
	Embedding    []float32          `json:"embedding,omitempty"`
	WatchedCount int                `json:"watched_count"`
	Confidence   float64            `json:"confidence"`
	Tendencies   map[string]float64 `json:"emotional_tendencies,omitempty"`
	LastUpdated  time.Time          `json:"last_updated"`
}

// ProfileConfidence implements the fixed confidence curve.
func ProfileConfidence(watchedCount int) float64 {
	c := float64(watchedCount) / 20.0
	if c > 1 {
		return 1
	}
	return c
}

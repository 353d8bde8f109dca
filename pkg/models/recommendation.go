package models

import "time"

// Recommendation modes recorded in the recommendation log.
const (
	RecTypeCurrentEmotion = "current_emotion"
	RecTypeHistoryBased   = "history_based"
	RecTypeHybrid         = "hybrid"
	RecTypeProfileBased   = "profile_based"
	RecTypeEmotionPublic  = "emotion_public"
)

// CleanRec is the outbound recommendation shape after enrichment.
// SimilarityScore is the inner product mapped to an integer 0..100
// (negative products clamp to 0).
type CleanRec struct {
	TmdbID          int64   `json:"tmdb_id"`
	ContentType     string  `json:"content_type"`
	Title           string  `json:"title"`
	Overview        string  `json:"overview"`
	BackdropPath    string  `json:"backdrop_path,omitempty"`
	PosterPath      string  `json:"poster_path,omitempty"`
	ReleaseDate     string  `json:"release_date,omitempty"`
	VoteAverage     float64 `json:"vote_average"`
	SimilarityScore int     `json:"similarity_score"`
	Rank            int     `json:"rank"`
}

// RecommendationEnvelope is the paginated response common to all modes.
// Total counts eligible candidates, not the page.
type RecommendationEnvelope struct {
	Recommendations []CleanRec `json:"recommendations"`
	Emotion         string     `json:"emotion,omitempty"`
	ContentType     string     `json:"content_type"`
	Total           int        `json:"total"`
	Page            int        `json:"page"`
	PageSize        int        `json:"page_size"`
	TotalPages      int        `json:"total_pages"`
	Method          string     `json:"method"`

	// Mode-specific extras.
	UserRatingsCount  int                `json:"user_ratings_count,omitempty"`
	ProfileConfidence float64            `json:"profile_confidence,omitempty"`
	EmotionConfidence float64            `json:"current_emotion_confidence,omitempty"`
	Weights           map[string]float64 `json:"weights,omitempty"`
}

// RecommendationLog is one append-only row of served recommendations.
type RecommendationLog struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	TmdbID             int64     `json:"tmdb_id"`
	ContentType        string    `json:"content_type"`
	RecommendationType string    `json:"recommendation_type"`
	EmotionState       string    `json:"emotion_state,omitempty"`
	Score              float64   `json:"score"`
	Viewed             bool      `json:"viewed"`
	CreatedAt          time.Time `json:"created_at"`
}

// IngestReport summarizes one bulk ingestion run.
type IngestReport struct {
	Added        int        `json:"added"`
	Skipped      int        `json:"skipped"`
	FailedPages  int        `json:"failed_pages"`
	StartPage    int        `json:"start_page"`
	EndPage      int        `json:"end_page"`
	ContentType  string     `json:"content_type"`
	IndexStats   IndexStats `json:"index_stats"`
	IVFOptimized bool       `json:"ivf_optimized"`
}

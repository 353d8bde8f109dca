package services

import (
	"context"
	"time"

	"github.com/mooviq/mooviq/internal/index"
	"github.com/mooviq/mooviq/internal/metadata"
	"github.com/mooviq/mooviq/pkg/models"
)

// Encoder is the embedding surface the services depend on.
type Encoder interface {
	Encode(text string) []float32
	EncodeBatch(texts []string) [][]float32
}

// Searcher is the vector index surface the services depend on.
type Searcher interface {
	Search(query []float32, k int, contentType string) []index.Result
	Find(key models.ContentKey) (models.ContentItem, bool)
	Add(item models.ContentItem) error
	Len() int
}

// CatalogClient is the metadata surface the services depend on.
type CatalogClient interface {
	Popular(ctx context.Context, contentType string, page int) (*metadata.PageResult, error)
	Details(ctx context.Context, contentType string, tmdbID int64) (*metadata.Item, error)
	FullItem(ctx context.Context, contentType string, tmdbID int64) (*models.ContentItem, error)
	GenreNames(ctx context.Context, contentType string) map[int]string
}

// EnvelopeCache is the slice of the JSON cache the services use.
type EnvelopeCache interface {
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool
}

// ProfileReader is what the recommendation engine needs from the analyzer.
type ProfileReader interface {
	ProfileOf(ctx context.Context, userID int64) (*models.EmotionalProfile, error)
}

// Narrow store surfaces so the services can be unit-tested against fakes.

type ProfileStorage interface {
	Get(ctx context.Context, userID int64) (*models.EmotionalProfile, error)
	Upsert(ctx context.Context, profile *models.EmotionalProfile) error
}

type ContentStorage interface {
	Upsert(ctx context.Context, item *models.ContentItem) error
}

type RatingStorage interface {
	ByUser(ctx context.Context, userID int64) ([]models.UserRating, error)
	RatedKeys(ctx context.Context, userID int64) (map[models.ContentKey]bool, error)
}

type RecLogStorage interface {
	AppendBatch(ctx context.Context, logs []models.RecommendationLog) error
}

// RoomStorage is the persistence surface of the room engine.
type RoomStorage interface {
	Create(ctx context.Context, room *models.Room) error
	ByCode(ctx context.Context, code string) (*models.Room, error)
	UpdateStatus(ctx context.Context, roomID int64, status models.RoomStatus) error
	InsertParticipant(ctx context.Context, roomID int64, sessionID string, maxParticipants int) (bool, error)
	Participants(ctx context.Context, roomID int64) ([]models.RoomParticipant, error)
	SetMood(ctx context.Context, roomID int64, sessionID, mood string) error
	SetDeck(ctx context.Context, roomID int64, deck []models.ContentItem) error
	Deck(ctx context.Context, roomID int64) ([]models.ContentItem, error)
	InsertInteraction(ctx context.Context, interaction *models.RoomInteraction) (bool, error)
	Interactions(ctx context.Context, roomID int64) ([]models.RoomInteraction, error)
	InsertMatch(ctx context.Context, roomID, tmdbID int64) (bool, error)
	Matches(ctx context.Context, roomID int64) ([]models.RoomMatch, error)
	DeleteAbandoned(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

package services

import (
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/cache"
	"github.com/mooviq/mooviq/internal/config"
	"github.com/mooviq/mooviq/internal/database"
	"github.com/mooviq/mooviq/internal/index"
	"github.com/mooviq/mooviq/internal/metadata"
	"github.com/mooviq/mooviq/internal/ml"
	"github.com/mooviq/mooviq/internal/store"
)

// Services is the wired service graph. Handlers and the scheduler only ever
// see this struct.
type Services struct {
	Embedding *ml.EmbeddingModel
	Index     *index.VectorIndex
	Catalog   *metadata.Catalog
	Stores    *store.Stores

	Emotion        *EmotionAnalyzer
	Recommendation *RecommendationService
	Rooms          *RoomService
	Ingest         *IngestService
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, c *cache.Cache) (*Services, error) {
	embedding := ml.NewEmbeddingModel(logger)
	idx := index.New(cfg.Index.Dir, logger)

	client := metadata.NewClient(cfg, logger)
	catalog := metadata.NewCatalog(client, c, logger)

	stores := store.New(db.PG, logger)

	emotion := NewEmotionAnalyzer(embedding, idx, catalog, stores.Profiles, stores.Content, logger)
	recommendation := NewRecommendationService(
		embedding, idx, catalog, stores.Ratings, stores.RecLog, emotion, c, logger,
	)
	rooms := NewRoomService(stores.Rooms, embedding, idx, logger)
	ingest := NewIngestService(catalog, embedding, idx, stores.Content, c, recommendation, logger)

	return &Services{
		Embedding:      embedding,
		Index:          idx,
		Catalog:        catalog,
		Stores:         stores,
		Emotion:        emotion,
		Recommendation: recommendation,
		Rooms:          rooms,
		Ingest:         ingest,
	}, nil
}

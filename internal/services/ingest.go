package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/index"
	"github.com/mooviq/mooviq/pkg/models"
)

const (
	// DefaultBatchPages is how many popular pages one ingestion run covers.
	DefaultBatchPages = 25

	// maxPopularPage is the provider's hard pagination ceiling.
	maxPopularPage = 500

	cursorTTL  = 7 * 24 * time.Hour
	prewarmTop = 20
	prewarmTTL = 24 * time.Hour
)

// Indexer extends the search surface with the mutating index operations the
// ingester needs.
type Indexer interface {
	Searcher
	Save() error
	OptimizeIfLarge() bool
	Stats() models.IndexStats
}

// PublicRecommender is the slice of the recommendation engine the prewarm
// job uses.
type PublicRecommender interface {
	PublicEmotion(ctx context.Context, text, contentType string, page, pageSize int, exclude map[models.ContentKey]bool) (*models.RecommendationEnvelope, error)
}

// IngestService pulls the provider's popular feed into the vector index and
// content store, tracking its position in the cache.
type IngestService struct {
	catalog CatalogClient
	encoder Encoder
	idx     Indexer
	content ContentStorage
	cache   EnvelopeCache
	recs    PublicRecommender
	logger  *logrus.Logger
}

func NewIngestService(
	catalog CatalogClient,
	encoder Encoder,
	idx Indexer,
	content ContentStorage,
	cache EnvelopeCache,
	recs PublicRecommender,
	logger *logrus.Logger,
) *IngestService {
	return &IngestService{
		catalog: catalog,
		encoder: encoder,
		idx:     idx,
		content: content,
		cache:   cache,
		recs:    recs,
		logger:  logger,
	}
}

func cursorKey(contentType string) string {
	return fmt.Sprintf("tmdb:ingest:popular:%s:last_page", contentType)
}

// PopulateContinue ingests the next batch of popular pages after the cached
// cursor. Failed pages are counted and skipped; the cursor still advances so
// reruns never double-ingest.
func (s *IngestService) PopulateContinue(ctx context.Context, contentType string, batchPages int) (*models.IngestReport, error) {
	if batchPages <= 0 {
		batchPages = DefaultBatchPages
	}

	var lastPage int
	s.cache.GetJSON(ctx, cursorKey(contentType), &lastPage)

	startPage := lastPage + 1
	endPage := lastPage + batchPages
	if endPage > maxPopularPage {
		endPage = maxPopularPage
	}
	if startPage > maxPopularPage {
		return &models.IngestReport{
			ContentType: contentType,
			StartPage:   startPage,
			EndPage:     lastPage,
			IndexStats:  s.idx.Stats(),
		}, nil
	}

	report := &models.IngestReport{
		ContentType: contentType,
		StartPage:   startPage,
		EndPage:     endPage,
	}

	genres := s.catalog.GenreNames(ctx, contentType)

	for page := startPage; page <= endPage; page++ {
		result, err := s.catalog.Popular(ctx, contentType, page)
		if err != nil {
			report.FailedPages++
			s.logger.WithError(err).WithFields(logrus.Fields{
				"content_type": contentType,
				"page":         page,
			}).Warn("Popular page fetch failed")
			continue
		}

		for _, entry := range result.Results {
			item := entry.ToContent(contentType, genres)
			if item.VoteAverage < index.MinVoteAverage {
				report.Skipped++
				continue
			}

			item.Embedding = s.encoder.Encode(EmbeddingText(&item))
			if err := s.idx.Add(item); err != nil {
				report.Skipped++
				continue
			}
			if s.content != nil {
				if err := s.content.Upsert(ctx, &item); err != nil {
					s.logger.WithError(err).WithField("tmdb_id", item.TmdbID).Warn("Failed to persist ingested item")
				}
			}
			report.Added++
		}
	}

	s.cache.SetJSON(ctx, cursorKey(contentType), endPage, cursorTTL)

	if err := s.idx.Save(); err != nil {
		s.logger.WithError(err).Error("Failed to persist index after ingestion")
	}
	report.IVFOptimized = s.idx.OptimizeIfLarge()
	report.IndexStats = s.idx.Stats()

	s.logger.WithFields(logrus.Fields{
		"content_type": contentType,
		"added":        report.Added,
		"skipped":      report.Skipped,
		"failed_pages": report.FailedPages,
		"cursor":       endPage,
	}).Info("Ingestion batch complete")
	return report, nil
}

// PrewarmPopular caches a details-plus-similar bundle for the current top
// popular titles so the public browsing surface answers from cache.
func (s *IngestService) PrewarmPopular(ctx context.Context, contentType string) error {
	page, err := s.catalog.Popular(ctx, contentType, 1)
	if err != nil {
		return err
	}

	warmed := 0
	for i, entry := range page.Results {
		if i == prewarmTop {
			break
		}

		detail, err := s.catalog.Details(ctx, contentType, entry.ID)
		if err != nil {
			s.logger.WithError(err).WithField("tmdb_id", entry.ID).Debug("Prewarm detail fetch failed")
			continue
		}

		exclude := map[models.ContentKey]bool{
			{ContentType: contentType, TmdbID: entry.ID}: true,
		}
		similar, err := s.recs.PublicEmotion(ctx, detail.Overview, contentType, 1, PageSize, exclude)
		if err != nil {
			s.logger.WithError(err).WithField("tmdb_id", entry.ID).Debug("Prewarm similar lookup failed")
			continue
		}

		bundle := map[string]any{
			"detail":  detail,
			"similar": similar,
		}
		key := fmt.Sprintf("tmdb:%s:%d:details_similar_public", contentType, entry.ID)
		if s.cache.SetJSON(ctx, key, bundle, prewarmTTL) {
			warmed++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"content_type": contentType,
		"warmed":       warmed,
	}).Info("Prewarm pass complete")
	return nil
}

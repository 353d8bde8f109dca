package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/internal/index"
	"github.com/mooviq/mooviq/internal/metadata"
	"github.com/mooviq/mooviq/pkg/models"
)

// Output shape constants shared by every recommendation mode.
const (
	PageSize           = 9
	MaxPages           = 5
	MaxRecommendations = 45

	// EmbeddingTopK is the index over-fetch per query.
	EmbeddingTopK = 200

	// DetailsFetchChunk is the enrichment look-ahead window.
	DetailsFetchChunk = 18

	enrichWorkers  = 8
	scoreBandWidth = 0.02

	userEnvelopeTTL   = 5 * time.Minute
	publicEnvelopeTTL = 10 * time.Minute
)

// Hybrid mode blend weights, current emotion vs stored profile.
const (
	hybridCurrentWeight = 0.7
	hybridProfileWeight = 0.3
)

// RecommendationService implements every recommendation mode over the shared
// vector index.
type RecommendationService struct {
	encoder  Encoder
	searcher Searcher
	catalog  CatalogClient
	ratings  RatingStorage
	recLog   RecLogStorage
	profiles ProfileReader
	cache    EnvelopeCache
	logger   *logrus.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewRecommendationService(
	encoder Encoder,
	searcher Searcher,
	catalog CatalogClient,
	ratings RatingStorage,
	recLog RecLogStorage,
	profiles ProfileReader,
	cache EnvelopeCache,
	logger *logrus.Logger,
) *RecommendationService {
	return &RecommendationService{
		encoder:  encoder,
		searcher: searcher,
		catalog:  catalog,
		ratings:  ratings,
		recLog:   recLog,
		profiles: profiles,
		cache:    cache,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CurrentEmotion recommends against the embedding of the raw emotion text,
// excluding titles the user already rated.
func (s *RecommendationService) CurrentEmotion(ctx context.Context, userID int64, text, contentType string, page int) (*models.RecommendationEnvelope, error) {
	page = clampPage(page)

	cacheKey := fmt.Sprintf("rec:emotion:%d:%s:%s:p%d", userID, text, contentType, page)
	if cached := s.cachedEnvelope(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	query := s.encoder.Encode(text)
	if isZero(query) {
		return s.emptyEnvelope(text, contentType, page, models.RecTypeCurrentEmotion), nil
	}

	candidates := s.searcher.Search(query, EmbeddingTopK, contentType)
	candidates, err := s.excludeRated(ctx, userID, candidates)
	if err != nil {
		return nil, err
	}
	s.bandShuffle(candidates)

	envelope := s.buildPage(ctx, candidates, text, contentType, page, PageSize, models.RecTypeCurrentEmotion)

	s.appendLogs(ctx, userID, text, models.RecTypeCurrentEmotion, envelope.Recommendations)
	s.storeEnvelope(ctx, cacheKey, envelope, userEnvelopeTTL)
	return envelope, nil
}

// Hybrid blends the current emotion with the stored profile. Users without a
// profile silently fall back to the pure current-emotion mode.
func (s *RecommendationService) Hybrid(ctx context.Context, userID int64, text, contentType string, page int) (*models.RecommendationEnvelope, error) {
	profile, err := s.profiles.ProfileOf(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNoProfile) {
			return s.CurrentEmotion(ctx, userID, text, contentType, page)
		}
		return nil, err
	}

	page = clampPage(page)
	cacheKey := fmt.Sprintf("rec:hybrid:%d:%s:%s:p%d", userID, text, contentType, page)
	if cached := s.cachedEnvelope(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	current := s.encoder.Encode(text)
	if isZero(current) {
		return s.emptyEnvelope(text, contentType, page, models.RecTypeHybrid), nil
	}

	emotionConfidence := neighborhoodConfidence(s.searcher, current)
	query := blendUnit(current, profile.Embedding, hybridCurrentWeight, hybridProfileWeight)

	candidates := s.searcher.Search(query, EmbeddingTopK, contentType)
	candidates, err = s.excludeRated(ctx, userID, candidates)
	if err != nil {
		return nil, err
	}
	s.bandShuffle(candidates)

	envelope := s.buildPage(ctx, candidates, text, contentType, page, PageSize, models.RecTypeHybrid)
	envelope.EmotionConfidence = emotionConfidence
	envelope.ProfileConfidence = profile.Confidence
	envelope.Weights = map[string]float64{
		"current_emotion": hybridCurrentWeight,
		"profile":         hybridProfileWeight,
	}

	s.appendLogs(ctx, userID, text, models.RecTypeHybrid, envelope.Recommendations)
	s.storeEnvelope(ctx, cacheKey, envelope, userEnvelopeTTL)
	return envelope, nil
}

// HistoryBased rebuilds a preference embedding from the user's ratings,
// weighting each rated title by rating/10. Unpaginated, up to 45 titles.
func (s *RecommendationService) HistoryBased(ctx context.Context, userID int64, contentType string) (*models.RecommendationEnvelope, error) {
	ratings, err := s.ratings.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	query := s.preferenceEmbedding(ratings)
	if query == nil {
		envelope := s.emptyEnvelope("", contentType, 1, models.RecTypeHistoryBased)
		envelope.UserRatingsCount = len(ratings)
		return envelope, nil
	}

	candidates := s.searcher.Search(query, EmbeddingTopK, contentType)
	candidates, err = s.excludeRated(ctx, userID, candidates)
	if err != nil {
		return nil, err
	}

	envelope := s.buildPage(ctx, candidates, "", contentType, 1, MaxRecommendations, models.RecTypeHistoryBased)
	envelope.UserRatingsCount = len(ratings)

	s.appendLogs(ctx, userID, "", models.RecTypeHistoryBased, envelope.Recommendations)
	return envelope, nil
}

// ProfileBased searches with the stored rolling profile embedding.
// ErrNoProfile propagates; this mode has no fallback.
func (s *RecommendationService) ProfileBased(ctx context.Context, userID int64, contentType string) (*models.RecommendationEnvelope, error) {
	profile, err := s.profiles.ProfileOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(profile.Embedding) == 0 {
		return nil, errs.ErrNoProfile
	}

	candidates := s.searcher.Search(profile.Embedding, EmbeddingTopK, contentType)
	candidates, err = s.excludeRated(ctx, userID, candidates)
	if err != nil {
		return nil, err
	}

	envelope := s.buildPage(ctx, candidates, "", contentType, 1, MaxRecommendations, models.RecTypeProfileBased)
	envelope.ProfileConfidence = profile.Confidence

	s.appendLogs(ctx, userID, "", models.RecTypeProfileBased, envelope.Recommendations)
	return envelope, nil
}

// PublicEmotion is the anonymous mode. contentType "all" merges both
// catalogues; exclude is caller-supplied (e.g. "similar titles" dropping the
// seed item itself).
func (s *RecommendationService) PublicEmotion(ctx context.Context, text, contentType string, page, pageSize int, exclude map[models.ContentKey]bool) (*models.RecommendationEnvelope, error) {
	page = clampPage(page)
	if pageSize <= 0 {
		pageSize = PageSize
	}

	cacheKey := fmt.Sprintf("rec:public:emotion:%s:%s:p%d:sz%d", text, contentType, page, pageSize)
	cacheable := len(exclude) == 0
	if cacheable {
		if cached := s.cachedEnvelope(ctx, cacheKey); cached != nil {
			return cached, nil
		}
	}

	query := s.encoder.Encode(text)
	if isZero(query) {
		return s.emptyEnvelope(text, contentType, page, models.RecTypeEmotionPublic), nil
	}

	var candidates []index.Result
	if contentType == models.ContentTypeAll {
		candidates = s.searchAllTypes(query)
	} else {
		candidates = s.searcher.Search(query, EmbeddingTopK, contentType)
		s.bandShuffle(candidates)
	}

	if len(exclude) > 0 {
		candidates = filterCandidates(candidates, exclude)
	}

	envelope := s.buildPage(ctx, candidates, text, contentType, page, pageSize, models.RecTypeEmotionPublic)
	if cacheable {
		s.storeEnvelope(ctx, cacheKey, envelope, publicEnvelopeTTL)
	}
	return envelope, nil
}

// searchAllTypes merges one search per catalogue, deduplicated by key and
// sorted by descending score. No band shuffle; the merged ranking is kept.
func (s *RecommendationService) searchAllTypes(query []float32) []index.Result {
	var merged []index.Result
	seen := make(map[models.ContentKey]bool)
	for _, contentType := range []string{models.ContentTypeMovie, models.ContentTypeTV} {
		for _, result := range s.searcher.Search(query, EmbeddingTopK, contentType) {
			key := result.Item.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, result)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}

func (s *RecommendationService) excludeRated(ctx context.Context, userID int64, candidates []index.Result) ([]index.Result, error) {
	rated, err := s.ratings.RatedKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rated) == 0 {
		return candidates, nil
	}
	return filterCandidates(candidates, rated), nil
}

func filterCandidates(candidates []index.Result, exclude map[models.ContentKey]bool) []index.Result {
	kept := candidates[:0:0]
	for _, c := range candidates {
		if !exclude[c.Item.Key()] {
			kept = append(kept, c)
		}
	}
	return kept
}

// bandShuffle shuffles runs of candidates whose scores sit within
// scoreBandWidth of the band anchor, preserving the order of bands.
func (s *RecommendationService) bandShuffle(candidates []index.Result) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	i := 0
	for i < len(candidates) {
		anchor := candidates[i].Score
		j := i + 1
		for j < len(candidates) && anchor-candidates[j].Score <= scoreBandWidth {
			j++
		}
		band := candidates[i:j]
		s.rng.Shuffle(len(band), func(a, b int) {
			band[a], band[b] = band[b], band[a]
		})
		i = j
	}
}

// buildPage paginates candidates and enriches the requested page with full
// metadata. Per-item failures shorten the page, never fail the request.
func (s *RecommendationService) buildPage(ctx context.Context, candidates []index.Result, emotion, contentType string, page, pageSize int, method string) *models.RecommendationEnvelope {
	total := len(candidates)

	envelope := &models.RecommendationEnvelope{
		Recommendations: []models.CleanRec{},
		Emotion:         emotion,
		ContentType:     contentType,
		Total:           total,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages(total, pageSize),
		Method:          method,
	}

	start := (page - 1) * pageSize
	if start >= total {
		return envelope
	}

	envelope.Recommendations = s.enrich(ctx, candidates, start, pageSize)
	return envelope
}

// enrich walks candidates from start in look-ahead chunks, fetching details
// concurrently and appending valid results in original candidate order until
// the page is full.
func (s *RecommendationService) enrich(ctx context.Context, candidates []index.Result, start, pageSize int) []models.CleanRec {
	recs := make([]models.CleanRec, 0, pageSize)
	rank := start

	i := start
	for i < len(candidates) && len(recs) < pageSize {
		end := i + DetailsFetchChunk
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[i:end]

		details := make([]*metadata.Item, len(chunk))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(enrichWorkers)
		for j, candidate := range chunk {
			j, candidate := j, candidate
			g.Go(func() error {
				item, err := s.catalog.Details(gctx, candidate.Item.ContentType, candidate.Item.TmdbID)
				if err != nil {
					s.logger.WithError(err).WithField("tmdb_id", candidate.Item.TmdbID).Debug("Skipping candidate")
					return nil
				}
				details[j] = item
				return nil
			})
		}
		_ = g.Wait()

		for j, item := range details {
			if len(recs) == pageSize {
				break
			}
			if item == nil || item.VoteAverage < index.MinVoteAverage {
				continue
			}
			rank++
			recs = append(recs, cleanRec(chunk[j], item, rank))
		}
		i = end
	}
	return recs
}

func cleanRec(candidate index.Result, item *metadata.Item, rank int) models.CleanRec {
	return models.CleanRec{
		TmdbID:          candidate.Item.TmdbID,
		ContentType:     candidate.Item.ContentType,
		Title:           item.DisplayTitle(),
		Overview:        item.Overview,
		BackdropPath:    item.BackdropPath,
		PosterPath:      item.PosterPath,
		ReleaseDate:     item.ReleaseDate,
		VoteAverage:     item.VoteAverage,
		SimilarityScore: similarityScore(candidate.Score),
		Rank:            rank,
	}
}

// similarityScore maps an inner product to 0..100. Negative products clamp
// to 0.
func similarityScore(score float32) int {
	v := int(math.Round(float64(score) * 100))
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// preferenceEmbedding averages rated titles' embeddings with weights
// proportional to rating/10, then renormalizes. Titles the index has never
// seen are skipped.
func (s *RecommendationService) preferenceEmbedding(ratings []models.UserRating) []float32 {
	var sum []float64
	var totalWeight float64

	for _, rating := range ratings {
		item, ok := s.searcher.Find(models.ContentKey{ContentType: rating.ContentType, TmdbID: rating.TmdbID})
		if !ok || len(item.Embedding) == 0 {
			continue
		}
		weight := float64(rating.Rating) / 10.0
		if sum == nil {
			sum = make([]float64, len(item.Embedding))
		}
		for i, v := range item.Embedding {
			sum[i] += float64(v) * weight
		}
		totalWeight += weight
	}

	if sum == nil || totalWeight == 0 {
		return nil
	}

	floats.Scale(1/totalWeight, sum)
	if n := floats.Norm(sum, 2); n > 0 {
		floats.Scale(1/n, sum)
	}

	out := make([]float32, len(sum))
	for i, v := range sum {
		out[i] = float32(v)
	}
	return out
}

func (s *RecommendationService) appendLogs(ctx context.Context, userID int64, emotion, method string, recs []models.CleanRec) {
	if len(recs) == 0 {
		return
	}

	logs := make([]models.RecommendationLog, len(recs))
	for i, rec := range recs {
		logs[i] = models.RecommendationLog{
			UserID:             userID,
			TmdbID:             rec.TmdbID,
			ContentType:        rec.ContentType,
			RecommendationType: method,
			EmotionState:       emotion,
			Score:              float64(rec.SimilarityScore) / 100.0,
		}
	}
	if err := s.recLog.AppendBatch(ctx, logs); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to append recommendation log")
	}
}

func (s *RecommendationService) cachedEnvelope(ctx context.Context, key string) *models.RecommendationEnvelope {
	if s.cache == nil {
		return nil
	}
	var envelope models.RecommendationEnvelope
	if s.cache.GetJSON(ctx, key, &envelope) {
		return &envelope
	}
	return nil
}

func (s *RecommendationService) storeEnvelope(ctx context.Context, key string, envelope *models.RecommendationEnvelope, ttl time.Duration) {
	// A canceled request means partial enrichment; never cache it.
	if s.cache == nil || ctx.Err() != nil {
		return
	}
	s.cache.SetJSON(ctx, key, envelope, ttl)
}

func (s *RecommendationService) emptyEnvelope(emotion, contentType string, page int, method string) *models.RecommendationEnvelope {
	return &models.RecommendationEnvelope{
		Recommendations: []models.CleanRec{},
		Emotion:         emotion,
		ContentType:     contentType,
		Page:            page,
		PageSize:        PageSize,
		Method:          method,
	}
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	if page > MaxPages {
		return MaxPages
	}
	return page
}

func totalPages(total, pageSize int) int {
	pages := (total + pageSize - 1) / pageSize
	if pages > MaxPages {
		return MaxPages
	}
	return pages
}

// blendUnit mixes two unit vectors with the given weights and renormalizes.
func blendUnit(a, b []float32, wa, wb float64) []float32 {
	mixed := make([]float64, len(a))
	for i := range a {
		var bv float64
		if i < len(b) {
			bv = float64(b[i])
		}
		mixed[i] = wa*float64(a[i]) + wb*bv
	}
	if n := floats.Norm(mixed, 2); n > 0 {
		floats.Scale(1/n, mixed)
	}
	out := make([]float32, len(mixed))
	for i, v := range mixed {
		out[i] = float32(v)
	}
	return out
}

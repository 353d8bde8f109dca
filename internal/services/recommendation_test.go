package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/internal/index"
	"github.com/mooviq/mooviq/internal/metadata"
	"github.com/mooviq/mooviq/pkg/models"
)

// seedCandidates builds n movie candidates with strictly separated scores so
// the band shuffle degenerates to identity and order is deterministic.
func seedCandidates(catalog *stubCatalog, n int) []index.Result {
	results := make([]index.Result, n)
	for i := 0; i < n; i++ {
		id := int64(1000 + i)
		results[i] = index.Result{
			Item: models.ContentItem{
				TmdbID:      id,
				ContentType: models.ContentTypeMovie,
				Title:       fmt.Sprintf("Movie %d", id),
				VoteAverage: 7.5,
			},
			Score: float32(0.95 - 0.03*float64(i)),
		}
		catalog.details[id] = &metadata.Item{
			ID:          id,
			Title:       fmt.Sprintf("Movie %d", id),
			Overview:    "overview",
			VoteAverage: 7.5,
			PosterPath:  "/p.jpg",
		}
	}
	return results
}

func newRecService(searcher *stubSearcher, catalog *stubCatalog, ratings *stubRatings, profiles *stubProfiles, cache EnvelopeCache) (*RecommendationService, *stubRecLog) {
	recLog := &stubRecLog{}
	svc := NewRecommendationService(
		&stubEncoder{vectors: map[string][]float32{}},
		searcher, catalog, ratings, recLog, profiles, cache, quietLogger(),
	)
	return svc, recLog
}

func TestCurrentEmotionPaginationStability(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	searcher.results[models.ContentTypeMovie] = seedCandidates(catalog, 30)

	svc, recLog := newRecService(searcher, catalog, &stubRatings{}, newStubProfiles(), nil)

	page2, err := svc.CurrentEmotion(context.Background(), 7, "sad and lonely", models.ContentTypeMovie, 2)
	require.NoError(t, err)

	assert.Equal(t, 30, page2.Total)
	assert.Equal(t, 4, page2.TotalPages)
	assert.Equal(t, 2, page2.Page)
	require.Len(t, page2.Recommendations, PageSize)
	assert.Equal(t, 10, page2.Recommendations[0].Rank)
	assert.Equal(t, 18, page2.Recommendations[8].Rank)
	assert.Equal(t, int64(1009), page2.Recommendations[0].TmdbID)

	page3, err := svc.CurrentEmotion(context.Background(), 7, "sad and lonely", models.ContentTypeMovie, 3)
	require.NoError(t, err)
	assert.Equal(t, 19, page3.Recommendations[0].Rank)
	assert.Equal(t, int64(1018), page3.Recommendations[0].TmdbID)

	// Every served title landed in the log.
	assert.Len(t, recLog.logs, 18)
	assert.Equal(t, models.RecTypeCurrentEmotion, recLog.logs[0].RecommendationType)
	assert.Equal(t, "sad and lonely", recLog.logs[0].EmotionState)
}

func TestCurrentEmotionSimilarityScoresMonotonic(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	searcher.results[models.ContentTypeMovie] = seedCandidates(catalog, 12)

	svc, _ := newRecService(searcher, catalog, &stubRatings{}, newStubProfiles(), nil)

	envelope, err := svc.CurrentEmotion(context.Background(), 7, "thrilled", models.ContentTypeMovie, 1)
	require.NoError(t, err)

	prev := 101
	for _, rec := range envelope.Recommendations {
		assert.GreaterOrEqual(t, rec.SimilarityScore, 0)
		assert.LessOrEqual(t, rec.SimilarityScore, 100)
		assert.LessOrEqual(t, rec.SimilarityScore, prev)
		prev = rec.SimilarityScore
	}
}

func TestCurrentEmotionExcludesRated(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	searcher.results[models.ContentTypeMovie] = seedCandidates(catalog, 12)

	ratings := &stubRatings{ratings: map[int64][]models.UserRating{
		7: {{UserID: 7, TmdbID: 1000, ContentType: models.ContentTypeMovie, Rating: 8}},
	}}
	svc, _ := newRecService(searcher, catalog, ratings, newStubProfiles(), nil)

	envelope, err := svc.CurrentEmotion(context.Background(), 7, "cozy evening", models.ContentTypeMovie, 1)
	require.NoError(t, err)

	assert.Equal(t, 11, envelope.Total)
	for _, rec := range envelope.Recommendations {
		assert.NotEqual(t, int64(1000), rec.TmdbID)
	}
}

func TestCurrentEmotionEmptyTextAndEmptyIndex(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	svc, _ := newRecService(searcher, catalog, &stubRatings{}, newStubProfiles(), nil)

	blank, err := svc.CurrentEmotion(context.Background(), 7, "   ", models.ContentTypeMovie, 1)
	require.NoError(t, err)
	assert.Empty(t, blank.Recommendations)
	assert.Zero(t, blank.Total)

	empty, err := svc.CurrentEmotion(context.Background(), 7, "anything", models.ContentTypeMovie, 1)
	require.NoError(t, err)
	assert.Empty(t, empty.Recommendations)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.TotalPages)
}

func TestEnrichmentSkipsFailedCandidates(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	candidates := seedCandidates(catalog, 15)

	// Three candidates fail enrichment: one unknown upstream, one dropped
	// below the vote floor since indexing.
	delete(catalog.details, 1001)
	delete(catalog.details, 1004)
	catalog.details[1002].VoteAverage = 4.2
	searcher.results[models.ContentTypeMovie] = candidates

	svc, _ := newRecService(searcher, catalog, &stubRatings{}, newStubProfiles(), nil)

	envelope, err := svc.CurrentEmotion(context.Background(), 7, "joyful", models.ContentTypeMovie, 1)
	require.NoError(t, err)

	// Page still fills to PAGE_SIZE from the look-ahead chunk.
	require.Len(t, envelope.Recommendations, PageSize)
	for _, rec := range envelope.Recommendations {
		assert.NotContains(t, []int64{1001, 1002, 1004}, rec.TmdbID)
	}
}

func TestHybridFallsBackWithoutProfile(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	searcher.results[models.ContentTypeMovie] = seedCandidates(catalog, 12)

	svc, _ := newRecService(searcher, catalog, &stubRatings{}, newStubProfiles(), nil)

	hybrid, err := svc.Hybrid(context.Background(), 7, "cheer me up", models.ContentTypeMovie, 1)
	require.NoError(t, err)
	direct, err := svc.CurrentEmotion(context.Background(), 7, "cheer me up", models.ContentTypeMovie, 1)
	require.NoError(t, err)

	assert.Equal(t, models.RecTypeCurrentEmotion, hybrid.Method)
	require.Len(t, hybrid.Recommendations, len(direct.Recommendations))
	for i := range hybrid.Recommendations {
		assert.Equal(t, direct.Recommendations[i].TmdbID, hybrid.Recommendations[i].TmdbID)
	}
}

func TestHybridBlendsProfile(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	searcher.results[models.ContentTypeMovie] = seedCandidates(catalog, 12)

	profiles := newStubProfiles()
	profileEmbedding := axisVector(5)
	require.NoError(t, profiles.Upsert(context.Background(), &models.EmotionalProfile{
		UserID:       7,
		Embedding:    profileEmbedding,
		WatchedCount: 10,
		Confidence:   0.5,
	}))

	svc, _ := newRecService(searcher, catalog, &stubRatings{}, profiles, nil)

	envelope, err := svc.Hybrid(context.Background(), 7, "cheer me up", models.ContentTypeMovie, 1)
	require.NoError(t, err)

	assert.Equal(t, models.RecTypeHybrid, envelope.Method)
	assert.InDelta(t, 0.5, envelope.ProfileConfidence, 1e-9)
	// Twelve seeded candidates saturate the confidence estimate.
	assert.InDelta(t, 1.0, envelope.EmotionConfidence, 1e-9)
	assert.InDelta(t, 0.7, envelope.Weights["current_emotion"], 1e-9)
	assert.InDelta(t, 0.3, envelope.Weights["profile"], 1e-9)

	// The blended query mixes both directions and stays unit length.
	query := searcher.lastQuery
	assert.Greater(t, query[0], float32(0))
	assert.Greater(t, query[5], float32(0))
	assert.Greater(t, query[0], query[5], "current emotion dominates the blend")
	var norm float64
	for _, v := range query {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestHistoryBasedWeightsRatings(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	searcher.results[models.ContentTypeMovie] = seedCandidates(catalog, 12)

	loved := models.ContentItem{TmdbID: 1, ContentType: models.ContentTypeMovie, VoteAverage: 8, Embedding: axisVector(1)}
	disliked := models.ContentItem{TmdbID: 2, ContentType: models.ContentTypeMovie, VoteAverage: 8, Embedding: axisVector(2)}
	searcher.found[loved.Key()] = loved
	searcher.found[disliked.Key()] = disliked

	ratings := &stubRatings{ratings: map[int64][]models.UserRating{
		7: {
			{UserID: 7, TmdbID: 1, ContentType: models.ContentTypeMovie, Rating: 10},
			{UserID: 7, TmdbID: 2, ContentType: models.ContentTypeMovie, Rating: 2},
		},
	}}

	svc, _ := newRecService(searcher, catalog, ratings, newStubProfiles(), nil)

	envelope, err := svc.HistoryBased(context.Background(), 7, models.ContentTypeMovie)
	require.NoError(t, err)

	assert.Equal(t, models.RecTypeHistoryBased, envelope.Method)
	assert.Equal(t, 2, envelope.UserRatingsCount)
	assert.Equal(t, 1, envelope.TotalPages)

	query := searcher.lastQuery
	assert.Greater(t, query[1], query[2], "higher-rated title pulls the preference vector harder")

	// Rated titles are excluded from the results.
	for _, rec := range envelope.Recommendations {
		assert.NotContains(t, []int64{1, 2}, rec.TmdbID)
	}
}

func TestHistoryBasedNoRatings(t *testing.T) {
	svc, _ := newRecService(newStubSearcher(), newStubCatalog(), &stubRatings{}, newStubProfiles(), nil)

	envelope, err := svc.HistoryBased(context.Background(), 7, models.ContentTypeMovie)
	require.NoError(t, err)
	assert.Empty(t, envelope.Recommendations)
	assert.Zero(t, envelope.UserRatingsCount)
}

func TestProfileBasedRequiresProfile(t *testing.T) {
	svc, _ := newRecService(newStubSearcher(), newStubCatalog(), &stubRatings{}, newStubProfiles(), nil)

	_, err := svc.ProfileBased(context.Background(), 7, models.ContentTypeMovie)
	assert.ErrorIs(t, err, errs.ErrNoProfile)
}

func TestProfileBasedUsesStoredEmbedding(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	searcher.results[models.ContentTypeMovie] = seedCandidates(catalog, 12)

	profiles := newStubProfiles()
	require.NoError(t, profiles.Upsert(context.Background(), &models.EmotionalProfile{
		UserID:       7,
		Embedding:    axisVector(3),
		WatchedCount: 4,
		Confidence:   0.2,
	}))

	svc, _ := newRecService(searcher, catalog, &stubRatings{}, profiles, nil)

	envelope, err := svc.ProfileBased(context.Background(), 7, models.ContentTypeMovie)
	require.NoError(t, err)
	assert.Equal(t, models.RecTypeProfileBased, envelope.Method)
	assert.InDelta(t, 0.2, envelope.ProfileConfidence, 1e-9)
	assert.Equal(t, axisVector(3), searcher.lastQuery)
}

func TestPublicEmotionCachesEnvelope(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	searcher.results[models.ContentTypeMovie] = seedCandidates(catalog, 12)
	cache := newMemCache()

	svc, _ := newRecService(searcher, catalog, &stubRatings{}, newStubProfiles(), cache)

	first, err := svc.PublicEmotion(context.Background(), "rainy day", models.ContentTypeMovie, 1, PageSize, nil)
	require.NoError(t, err)
	callsAfterFirst := catalog.detailCalls

	second, err := svc.PublicEmotion(context.Background(), "rainy day", models.ContentTypeMovie, 1, PageSize, nil)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, catalog.detailCalls, "second call is served from cache")
	assert.Equal(t, first.Total, second.Total)
	require.Len(t, second.Recommendations, len(first.Recommendations))
	for i := range first.Recommendations {
		assert.Equal(t, first.Recommendations[i].TmdbID, second.Recommendations[i].TmdbID)
	}
}

func TestPublicEmotionExcludeSet(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()
	searcher.results[models.ContentTypeMovie] = seedCandidates(catalog, 12)

	svc, _ := newRecService(searcher, catalog, &stubRatings{}, newStubProfiles(), newMemCache())

	exclude := map[models.ContentKey]bool{
		{ContentType: models.ContentTypeMovie, TmdbID: 1000}: true,
	}
	envelope, err := svc.PublicEmotion(context.Background(), "nostalgic", models.ContentTypeMovie, 1, PageSize, exclude)
	require.NoError(t, err)

	assert.Equal(t, 11, envelope.Total)
	for _, rec := range envelope.Recommendations {
		assert.NotEqual(t, int64(1000), rec.TmdbID)
	}
}

func TestPublicEmotionAllMergesCatalogues(t *testing.T) {
	searcher := newStubSearcher()
	catalog := newStubCatalog()

	movies := seedCandidates(catalog, 3)
	searcher.results[models.ContentTypeMovie] = movies

	tvItem := models.ContentItem{TmdbID: 9000, ContentType: models.ContentTypeTV, Title: "Show", VoteAverage: 8}
	catalog.details[9000] = &metadata.Item{ID: 9000, Name: "Show", VoteAverage: 8}
	searcher.results[models.ContentTypeTV] = []index.Result{{Item: tvItem, Score: 0.93}}

	svc, _ := newRecService(searcher, catalog, &stubRatings{}, newStubProfiles(), nil)

	envelope, err := svc.PublicEmotion(context.Background(), "surprise me", models.ContentTypeAll, 1, PageSize, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, envelope.Total)
	// Merged listing is ordered by descending score: 0.95, 0.93, 0.92, 0.89.
	require.Len(t, envelope.Recommendations, 4)
	assert.Equal(t, int64(1000), envelope.Recommendations[0].TmdbID)
	assert.Equal(t, int64(9000), envelope.Recommendations[1].TmdbID)
}

func TestBandShuffleKeepsBandBoundaries(t *testing.T) {
	svc, _ := newRecService(newStubSearcher(), newStubCatalog(), &stubRatings{}, newStubProfiles(), nil)

	candidates := []index.Result{
		{Item: models.ContentItem{TmdbID: 1}, Score: 0.90},
		{Item: models.ContentItem{TmdbID: 2}, Score: 0.89},
		{Item: models.ContentItem{TmdbID: 3}, Score: 0.885},
		{Item: models.ContentItem{TmdbID: 4}, Score: 0.50},
		{Item: models.ContentItem{TmdbID: 5}, Score: 0.49},
	}
	svc.bandShuffle(candidates)

	firstBand := map[int64]bool{1: true, 2: true, 3: true}
	for _, c := range candidates[:3] {
		assert.True(t, firstBand[c.Item.TmdbID])
	}
	secondBand := map[int64]bool{4: true, 5: true}
	for _, c := range candidates[3:] {
		assert.True(t, secondBand[c.Item.TmdbID])
	}
}

func TestSimilarityScoreClampsNegative(t *testing.T) {
	assert.Equal(t, 0, similarityScore(-0.4))
	assert.Equal(t, 0, similarityScore(0))
	assert.Equal(t, 92, similarityScore(0.915))
	assert.Equal(t, 100, similarityScore(1.2))
}

func TestClampPageAndTotalPages(t *testing.T) {
	assert.Equal(t, 1, clampPage(0))
	assert.Equal(t, 1, clampPage(-3))
	assert.Equal(t, 3, clampPage(3))
	assert.Equal(t, MaxPages, clampPage(99))

	assert.Equal(t, 0, totalPages(0, PageSize))
	assert.Equal(t, 1, totalPages(9, PageSize))
	assert.Equal(t, 4, totalPages(30, PageSize))
	assert.Equal(t, MaxPages, totalPages(1000, PageSize))
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/pkg/models"
)

// confidenceProbeK sizes the neighborhood probe behind analyze confidence.
const confidenceProbeK = 10

// EmotionAnalyzer encodes free-text emotion and maintains per-user rolling
// emotional profiles.
type EmotionAnalyzer struct {
	encoder  Encoder
	searcher Searcher
	catalog  CatalogClient
	profiles ProfileStorage
	content  ContentStorage
	logger   *logrus.Logger

	// userLocks serializes profile updates per user; the weighted-average
	// update is order-sensitive.
	userLocks sync.Map
}

func NewEmotionAnalyzer(
	encoder Encoder,
	searcher Searcher,
	catalog CatalogClient,
	profiles ProfileStorage,
	content ContentStorage,
	logger *logrus.Logger,
) *EmotionAnalyzer {
	return &EmotionAnalyzer{
		encoder:  encoder,
		searcher: searcher,
		catalog:  catalog,
		profiles: profiles,
		content:  content,
		logger:   logger,
	}
}

// EmotionAnalysis is the result of analyzing one emotion text.
type EmotionAnalysis struct {
	Embedding  []float32
	Confidence float64
}

// Analyze encodes text and estimates confidence from how dense the index
// neighborhood around the embedding is. The probe results themselves are
// discarded.
func (a *EmotionAnalyzer) Analyze(ctx context.Context, text string) EmotionAnalysis {
	embedding := a.encoder.Encode(text)
	if isZero(embedding) {
		return EmotionAnalysis{Embedding: embedding}
	}

	return EmotionAnalysis{Embedding: embedding, Confidence: neighborhoodConfidence(a.searcher, embedding)}
}

// neighborhoodConfidence estimates how well the catalogue covers an embedding
// by counting hits in a small fixed-size search.
func neighborhoodConfidence(searcher Searcher, embedding []float32) float64 {
	similar := searcher.Search(embedding, confidenceProbeK, models.ContentTypeMovie)
	confidence := float64(len(similar)) / float64(confidenceProbeK)
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// UpdateProfile folds one rating into the user's rolling profile:
//
//	embedding' = normalize((embedding*watched + e*(rating/10)) / (watched+1))
//
// Updates for the same user are serialized; the formula does not commute.
func (a *EmotionAnalyzer) UpdateProfile(ctx context.Context, userID, tmdbID int64, rating int, contentType string) (*models.EmotionalProfile, error) {
	if rating < 1 || rating > 10 {
		return nil, fmt.Errorf("rating %d out of range", rating)
	}

	lock := a.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	item, embedding, err := a.resolveItem(ctx, contentType, tmdbID)
	if err != nil {
		return nil, err
	}

	profile, err := a.profiles.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, errs.ErrNoProfile) {
			return nil, err
		}
		profile = &models.EmotionalProfile{
			UserID:     userID,
			Tendencies: map[string]float64{},
		}
	}
	if profile.Tendencies == nil {
		profile.Tendencies = map[string]float64{}
	}

	weight := float64(rating) / 10.0
	count := profile.WatchedCount

	next := make([]float64, len(embedding))
	for i, v := range embedding {
		var prev float64
		if count > 0 && i < len(profile.Embedding) {
			prev = float64(profile.Embedding[i])
		}
		next[i] = (prev*float64(count) + float64(v)*weight) / float64(count+1)
	}
	if n := floats.Norm(next, 2); n > 0 {
		floats.Scale(1/n, next)
	}

	profile.Embedding = make([]float32, len(next))
	for i, v := range next {
		profile.Embedding[i] = float32(v)
	}
	profile.WatchedCount = count + 1
	profile.Confidence = models.ProfileConfidence(profile.WatchedCount)
	profile.LastUpdated = time.Now()

	a.updateTendencies(profile, item.Genres, rating)

	if err := a.profiles.Upsert(ctx, profile); err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"tmdb_id":       tmdbID,
		"watched_count": profile.WatchedCount,
	}).Debug("Emotional profile updated")
	return profile, nil
}

// ProfileOf is a pure read, ErrNoProfile for fresh users.
func (a *EmotionAnalyzer) ProfileOf(ctx context.Context, userID int64) (*models.EmotionalProfile, error) {
	return a.profiles.Get(ctx, userID)
}

// resolveItem returns an item and its embedding, fetching and embedding
// lazily when the index has never seen it.
func (a *EmotionAnalyzer) resolveItem(ctx context.Context, contentType string, tmdbID int64) (models.ContentItem, []float32, error) {
	key := models.ContentKey{ContentType: contentType, TmdbID: tmdbID}
	if item, ok := a.searcher.Find(key); ok {
		return item, item.Embedding, nil
	}

	fetched, err := a.catalog.FullItem(ctx, contentType, tmdbID)
	if err != nil {
		return models.ContentItem{}, nil, err
	}

	embedding := a.encoder.Encode(EmbeddingText(fetched))
	fetched.Embedding = embedding

	// Lazily learned items join the live index when they qualify; the
	// content store keeps them either way so rebuilds see them.
	if err := a.searcher.Add(*fetched); err != nil {
		a.logger.WithError(err).WithField("tmdb_id", tmdbID).Debug("Lazy item not indexed")
	}
	if a.content != nil {
		if err := a.content.Upsert(ctx, fetched); err != nil {
			a.logger.WithError(err).WithField("tmdb_id", tmdbID).Warn("Failed to persist lazy item")
		}
	}
	return *fetched, embedding, nil
}

// Genre heuristics carried over from the profile model: a rated title nudges
// a tendency only when its genres signal that quality strongly enough.
func (a *EmotionAnalyzer) updateTendencies(profile *models.EmotionalProfile, genres []string, rating int) {
	nudge := float64(rating) / 10.0 * 0.1

	if moodImprovingScore(genres) > 0.6 {
		profile.Tendencies["uplifting"] = tendencyOr(profile.Tendencies, "uplifting") + nudge
	}
	if intensityScore(genres) > 0.7 {
		profile.Tendencies["intense"] = tendencyOr(profile.Tendencies, "intense") + nudge
	}
}

func tendencyOr(tendencies map[string]float64, key string) float64 {
	if v, ok := tendencies[key]; ok {
		return v
	}
	return 0.5
}

func intensityScore(genres []string) float64 {
	score := 0.5
	switch {
	case containsAny(genres, "Action", "Thriller", "Horror"):
		score += 0.3
	case containsAny(genres, "Drama", "War"):
		score += 0.2
	case containsAny(genres, "Comedy", "Romance"):
		score += 0.1
	}
	return score
}

func moodImprovingScore(genres []string) float64 {
	score := 0.5
	switch {
	case containsAny(genres, "Comedy", "Romance", "Animation"):
		score += 0.3
	case containsAny(genres, "Horror", "War"):
		score -= 0.2
	}
	return score
}

func containsAny(haystack []string, needles ...string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n {
				return true
			}
		}
	}
	return false
}

func (a *EmotionAnalyzer) lockFor(userID int64) *sync.Mutex {
	lock, _ := a.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// EmbeddingText builds the canonical text an item is embedded from.
func EmbeddingText(item *models.ContentItem) string {
	parts := make([]string, 0, 6)
	for _, part := range []string{
		item.Title,
		item.Tagline,
		item.Overview,
		strings.Join(item.Genres, " "),
		strings.Join(item.Cast, " "),
		item.Network,
	} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ". ")
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

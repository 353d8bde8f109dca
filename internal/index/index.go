// Package index implements the in-process vector index over catalogue
// embeddings. A flat inner-product scan serves small catalogues; past a size
// threshold the index switches to an inverted-file layout (coarse k-means
// quantizer plus posting lists) that probes only a subset of cells.
package index

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/ml"
	"github.com/mooviq/mooviq/pkg/models"
)

const (
	// MinVoteAverage gates catalogue admission. Low-rated items never enter
	// the index.
	MinVoteAverage = 6.0

	// optimizeThreshold is the item count past which the inverted-file
	// layout pays off.
	optimizeThreshold = 100000

	maxCells = 4096
)

// Result pairs a payload item with its inner-product score against the query.
type Result struct {
	Item  models.ContentItem
	Score float32
}

type backend interface {
	name() string
	// search returns up to k vector ids with scores, best first.
	search(query []float32, k int) []scored
	// rebuild reconstructs backend state from the full vector set.
	rebuild(vectors [][]float32)
	// add registers one appended vector.
	add(id int, vector []float32)
}

type scored struct {
	id    int
	score float32
}

// VectorIndex holds vectors and their payload side by side. A single writer
// is assumed; reads run concurrently under the RWMutex.
type VectorIndex struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	items   []models.ContentItem
	byKey   map[models.ContentKey]int
	backend backend
	dir     string
	logger  *logrus.Logger
}

func New(dir string, logger *logrus.Logger) *VectorIndex {
	return &VectorIndex{
		dim:     ml.Dimensions,
		byKey:   make(map[models.ContentKey]int),
		backend: newFlat(),
		dir:     dir,
		logger:  logger,
	}
}

// Add inserts or updates one item. Items below the vote threshold or with a
// missing embedding are rejected with a nil-safe error.
func (idx *VectorIndex) Add(item models.ContentItem) error {
	if len(item.Embedding) != idx.dim {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(item.Embedding), idx.dim)
	}
	if item.VoteAverage < MinVoteAverage {
		return fmt.Errorf("vote average %.1f below admission threshold", item.VoteAverage)
	}
	if isZeroVector(item.Embedding) {
		return fmt.Errorf("zero embedding for %s %d", item.ContentType, item.TmdbID)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := item.Key()
	if pos, ok := idx.byKey[key]; ok {
		idx.vectors[pos] = item.Embedding
		idx.items[pos] = item
		idx.backend.rebuild(idx.vectors)
		return nil
	}

	id := len(idx.vectors)
	idx.vectors = append(idx.vectors, item.Embedding)
	idx.items = append(idx.items, item)
	idx.byKey[key] = id
	idx.backend.add(id, item.Embedding)
	return nil
}

// AddBatch inserts items, skipping rejects, and returns how many landed.
func (idx *VectorIndex) AddBatch(items []models.ContentItem) int {
	added := 0
	for _, item := range items {
		if err := idx.Add(item); err != nil {
			idx.logger.WithError(err).WithFields(logrus.Fields{
				"content_type": item.ContentType,
				"tmdb_id":      item.TmdbID,
			}).Debug("Item rejected by index")
			continue
		}
		added++
	}
	return added
}

// Search returns the k best matches for query, optionally filtered to one
// content type. With a filter active the backend is over-queried (2k) so the
// post-filter result set still fills up.
func (idx *VectorIndex) Search(query []float32, k int, contentType string) []Result {
	if k <= 0 || len(query) != idx.dim {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 {
		return nil
	}

	fetch := k
	filtered := contentType != "" && contentType != models.ContentTypeAll
	if filtered {
		fetch = 2 * k
	}
	if fetch > len(idx.vectors) {
		fetch = len(idx.vectors)
	}

	hits := idx.backend.search(query, fetch)

	results := make([]Result, 0, k)
	for _, hit := range hits {
		item := idx.items[hit.id]
		if filtered && item.ContentType != contentType {
			continue
		}
		results = append(results, Result{Item: item, Score: hit.score})
		if len(results) == k {
			break
		}
	}
	return results
}

// Find returns the payload for a key, if indexed.
func (idx *VectorIndex) Find(key models.ContentKey) (models.ContentItem, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	pos, ok := idx.byKey[key]
	if !ok {
		return models.ContentItem{}, false
	}
	return idx.items[pos], true
}

// Items pages through the payload, optionally filtered by content type.
// Returns the page and the filtered total.
func (idx *VectorIndex) Items(offset, limit int, contentType string) ([]models.ContentItem, int) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	filtered := contentType != "" && contentType != models.ContentTypeAll

	var pool []models.ContentItem
	if filtered {
		for _, item := range idx.items {
			if item.ContentType == contentType {
				pool = append(pool, item)
			}
		}
	} else {
		pool = idx.items
	}

	total := len(pool)
	if offset >= total {
		return nil, total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := make([]models.ContentItem, end-offset)
	copy(page, pool[offset:end])
	return page, total
}

// Len returns the number of indexed items.
func (idx *VectorIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Stats summarizes the index for the admin surface.
func (idx *VectorIndex) Stats() models.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := models.IndexStats{
		TotalItems: len(idx.items),
		Dimension:  idx.dim,
		Backend:    idx.backend.name(),
	}
	for _, item := range idx.items {
		switch item.ContentType {
		case models.ContentTypeMovie:
			stats.MovieCount++
		case models.ContentTypeTV:
			stats.TVCount++
		}
	}
	return stats
}

// OptimizeIfLarge switches to the inverted-file backend once the catalogue
// crosses the threshold. Returns true when a switch (or retrain) happened.
func (idx *VectorIndex) OptimizeIfLarge() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := len(idx.vectors)
	if n <= optimizeThreshold {
		return false
	}

	cells := n / 100
	if cells > maxCells {
		cells = maxCells
	}

	if ivf, ok := idx.backend.(*ivfBackend); ok && ivf.cells == cells {
		return false
	}

	idx.logger.WithFields(logrus.Fields{
		"items": n,
		"cells": cells,
	}).Info("Switching index to inverted-file layout")

	ivf := newIVF(idx.dim, cells)
	ivf.rebuild(idx.vectors)
	idx.backend = ivf
	return true
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

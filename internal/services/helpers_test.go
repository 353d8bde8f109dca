package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/internal/index"
	"github.com/mooviq/mooviq/internal/metadata"
	"github.com/mooviq/mooviq/internal/ml"
	"github.com/mooviq/mooviq/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// axisVector returns a unit vector along one dimension, optionally scaled.
func axisVector(dim int) []float32 {
	v := make([]float32, ml.Dimensions)
	v[dim%ml.Dimensions] = 1
	return v
}

// blendVectors mixes and renormalizes for controlled similarities.
func blendVectors(a, b []float32, wa, wb float64) []float32 {
	out := make([]float32, len(a))
	var norm float64
	for i := range a {
		out[i] = float32(wa*float64(a[i]) + wb*float64(b[i]))
		norm += float64(out[i]) * float64(out[i])
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}

// stubEncoder returns preset vectors per text, a default axis vector
// otherwise, and the zero vector for blank input.
type stubEncoder struct {
	vectors map[string][]float32
}

func (e *stubEncoder) Encode(text string) []float32 {
	if isBlank(text) {
		return make([]float32, ml.Dimensions)
	}
	if v, ok := e.vectors[text]; ok {
		return v
	}
	return axisVector(0)
}

func (e *stubEncoder) EncodeBatch(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.Encode(t)
	}
	return out
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' {
			return false
		}
	}
	return true
}

// stubSearcher serves canned results per content type and records queries.
type stubSearcher struct {
	mu        sync.Mutex
	results   map[string][]index.Result // keyed by content type, "" for any
	found     map[models.ContentKey]models.ContentItem
	added     []models.ContentItem
	lastQuery []float32
	lastK     int
}

func newStubSearcher() *stubSearcher {
	return &stubSearcher{
		results: map[string][]index.Result{},
		found:   map[models.ContentKey]models.ContentItem{},
	}
}

func (s *stubSearcher) Search(query []float32, k int, contentType string) []index.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = query
	s.lastK = k

	results, ok := s.results[contentType]
	if !ok {
		results = s.results[""]
	}
	if len(results) > k {
		results = results[:k]
	}
	out := make([]index.Result, len(results))
	copy(out, results)
	return out
}

func (s *stubSearcher) Find(key models.ContentKey) (models.ContentItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.found[key]
	return item, ok
}

func (s *stubSearcher) Add(item models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.VoteAverage < index.MinVoteAverage {
		return fmt.Errorf("vote average below threshold")
	}
	s.added = append(s.added, item)
	s.found[item.Key()] = item
	return nil
}

func (s *stubSearcher) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.found)
}

// stubCatalog answers Details from a map; missing ids are NotFound.
type stubCatalog struct {
	mu          sync.Mutex
	details     map[int64]*metadata.Item
	fullItems   map[int64]*models.ContentItem
	popular     map[int][]metadata.Item // keyed by page
	failPages   map[int]bool
	detailCalls int
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		details:   map[int64]*metadata.Item{},
		fullItems: map[int64]*models.ContentItem{},
		popular:   map[int][]metadata.Item{},
		failPages: map[int]bool{},
	}
}

func (c *stubCatalog) Popular(ctx context.Context, contentType string, page int) (*metadata.PageResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPages[page] {
		return nil, errs.Transientf("page %d unavailable", page)
	}
	return &metadata.PageResult{
		Page:    page,
		Results: c.popular[page],
	}, nil
}

func (c *stubCatalog) Details(ctx context.Context, contentType string, tmdbID int64) (*metadata.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detailCalls++
	item, ok := c.details[tmdbID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return item, nil
}

func (c *stubCatalog) FullItem(ctx context.Context, contentType string, tmdbID int64) (*models.ContentItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.fullItems[tmdbID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	clone := *item
	return &clone, nil
}

func (c *stubCatalog) GenreNames(ctx context.Context, contentType string) map[int]string {
	return map[int]string{28: "Action", 35: "Comedy"}
}

// stubRatings serves ratings from memory.
type stubRatings struct {
	ratings map[int64][]models.UserRating
}

func (r *stubRatings) ByUser(ctx context.Context, userID int64) ([]models.UserRating, error) {
	return r.ratings[userID], nil
}

func (r *stubRatings) RatedKeys(ctx context.Context, userID int64) (map[models.ContentKey]bool, error) {
	keys := make(map[models.ContentKey]bool)
	for _, rating := range r.ratings[userID] {
		keys[models.ContentKey{ContentType: rating.ContentType, TmdbID: rating.TmdbID}] = true
	}
	return keys, nil
}

// stubRecLog records appended batches.
type stubRecLog struct {
	mu   sync.Mutex
	logs []models.RecommendationLog
}

func (l *stubRecLog) AppendBatch(ctx context.Context, logs []models.RecommendationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, logs...)
	return nil
}

// stubProfiles backs both ProfileReader and ProfileStorage.
type stubProfiles struct {
	mu       sync.Mutex
	profiles map[int64]*models.EmotionalProfile
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{profiles: map[int64]*models.EmotionalProfile{}}
}

func (p *stubProfiles) ProfileOf(ctx context.Context, userID int64) (*models.EmotionalProfile, error) {
	return p.Get(ctx, userID)
}

func (p *stubProfiles) Get(ctx context.Context, userID int64) (*models.EmotionalProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.profiles[userID]
	if !ok {
		return nil, errs.ErrNoProfile
	}
	clone := *profile
	return &clone, nil
}

func (p *stubProfiles) Upsert(ctx context.Context, profile *models.EmotionalProfile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := *profile
	p.profiles[profile.UserID] = &clone
	return nil
}

// stubContent records upserts.
type stubContent struct {
	mu    sync.Mutex
	items []models.ContentItem
}

func (c *stubContent) Upsert(ctx context.Context, item *models.ContentItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, *item)
	return nil
}

// memCache is a JSON round-tripping in-memory cache.
type memCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{values: map[string][]byte{}}
}

func (c *memCache) GetJSON(ctx context.Context, key string, dest any) bool {
	c.mu.Lock()
	raw, ok := c.values[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (c *memCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	c.mu.Lock()
	c.values[key] = raw
	c.mu.Unlock()
	return true
}

// memRoomStore is a full in-memory RoomStorage.
type memRoomStore struct {
	mu           sync.Mutex
	nextID       int64
	rooms        map[int64]*models.Room
	codes        map[string]int64
	participants map[int64][]models.RoomParticipant
	decks        map[int64][]models.ContentItem
	interactions map[int64][]models.RoomInteraction
	matches      map[int64][]models.RoomMatch
}

func newMemRoomStore() *memRoomStore {
	return &memRoomStore{
		rooms:        map[int64]*models.Room{},
		codes:        map[string]int64{},
		participants: map[int64][]models.RoomParticipant{},
		decks:        map[int64][]models.ContentItem{},
		interactions: map[int64][]models.RoomInteraction{},
		matches:      map[int64][]models.RoomMatch{},
	}
}

func (m *memRoomStore) Create(ctx context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.codes[room.Code]; ok && m.rooms[id].Status != models.RoomStatusFinished {
		return errs.ErrConflict
	}
	m.nextID++
	room.ID = m.nextID
	room.CreatedAt = time.Now()
	clone := *room
	m.rooms[room.ID] = &clone
	m.codes[room.Code] = room.ID
	return nil
}

func (m *memRoomStore) ByCode(ctx context.Context, code string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.codes[code]
	if !ok {
		return nil, errs.ErrNotFound
	}
	clone := *m.rooms[id]
	return &clone, nil
}

func (m *memRoomStore) UpdateStatus(ctx context.Context, roomID int64, status models.RoomStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return errs.ErrNotFound
	}
	room.Status = status
	return nil
}

func (m *memRoomStore) InsertParticipant(ctx context.Context, roomID int64, sessionID string, maxParticipants int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants[roomID] {
		if p.SessionID == sessionID {
			return false, nil
		}
	}
	if len(m.participants[roomID]) >= maxParticipants {
		return false, nil
	}
	m.participants[roomID] = append(m.participants[roomID], models.RoomParticipant{
		RoomID:    roomID,
		SessionID: sessionID,
		JoinedAt:  time.Now(),
	})
	return true, nil
}

func (m *memRoomStore) Participants(ctx context.Context, roomID int64) ([]models.RoomParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RoomParticipant, len(m.participants[roomID]))
	copy(out, m.participants[roomID])
	return out, nil
}

func (m *memRoomStore) SetMood(ctx context.Context, roomID int64, sessionID, mood string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.participants[roomID] {
		if p.SessionID == sessionID {
			m.participants[roomID][i].Mood = mood
			m.participants[roomID][i].IsReady = true
			return nil
		}
	}
	return errs.ErrNotFound
}

func (m *memRoomStore) SetDeck(ctx context.Context, roomID int64, deck []models.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decks[roomID] = deck
	return nil
}

func (m *memRoomStore) Deck(ctx context.Context, roomID int64) ([]models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decks[roomID], nil
}

func (m *memRoomStore) InsertInteraction(ctx context.Context, interaction *models.RoomInteraction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.interactions[interaction.RoomID] {
		if i.SessionID == interaction.SessionID && i.TmdbID == interaction.TmdbID {
			return false, nil
		}
	}
	clone := *interaction
	clone.CreatedAt = time.Now()
	m.interactions[interaction.RoomID] = append(m.interactions[interaction.RoomID], clone)
	return true, nil
}

func (m *memRoomStore) Interactions(ctx context.Context, roomID int64) ([]models.RoomInteraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RoomInteraction, len(m.interactions[roomID]))
	copy(out, m.interactions[roomID])
	return out, nil
}

func (m *memRoomStore) InsertMatch(ctx context.Context, roomID, tmdbID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, match := range m.matches[roomID] {
		if match.TmdbID == tmdbID {
			return false, nil
		}
	}
	m.matches[roomID] = append(m.matches[roomID], models.RoomMatch{
		ID:        int64(len(m.matches[roomID]) + 1),
		RoomID:    roomID,
		TmdbID:    tmdbID,
		CreatedAt: time.Now(),
	})
	return true, nil
}

func (m *memRoomStore) Matches(ctx context.Context, roomID int64) ([]models.RoomMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RoomMatch, len(m.matches[roomID]))
	copy(out, m.matches[roomID])
	return out, nil
}

func (m *memRoomStore) DeleteAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, room := range m.rooms {
		if room.Status != models.RoomStatusFinished && room.CreatedAt.Before(cutoff) {
			delete(m.rooms, id)
			delete(m.codes, room.Code)
			delete(m.participants, id)
			delete(m.interactions, id)
			delete(m.matches, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memRoomStore) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, room := range m.rooms {
		if room.Status == models.RoomStatusFinished && room.CreatedAt.Before(cutoff) {
			purged += int64(len(m.participants[id]))
			delete(m.participants, id)
			delete(m.interactions, id)
		}
	}
	return purged, nil
}

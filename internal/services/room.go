package services

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/internal/index"
	"github.com/mooviq/mooviq/pkg/models"
)

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeAttempts = 10

	deckSize    = 20
	moodSearchK = 10
	jokerK      = 5

	// jokerQuery seeds every deck with broadly appealing titles regardless
	// of the participants' moods.
	jokerQuery = "popular award winning masterpiece highly rated best"

	minRoomParticipants = 2
	maxRoomParticipants = 5
	minRoomDuration     = 1
	maxRoomDuration     = 30

	moodMinLength = 3
	moodMaxLength = 500

	superlikeWeight = 3
	likeWeight      = 1
	topMatchCount   = 5

	// RoomExpiry is the age past which abandoned rooms are reaped.
	RoomExpiry = 30 * time.Minute
)

// RoomService drives the swipe-room state machine.
type RoomService struct {
	rooms    RoomStorage
	encoder  Encoder
	searcher Searcher
	logger   *logrus.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewRoomService(rooms RoomStorage, encoder Encoder, searcher Searcher, logger *logrus.Logger) *RoomService {
	return &RoomService{
		rooms:    rooms,
		encoder:  encoder,
		searcher: searcher,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RoomState is a room snapshot handed to transports.
type RoomState struct {
	Room         *models.Room             `json:"room"`
	Participants []models.RoomParticipant `json:"participants"`
}

// SwipeResult reports the consequences of one swipe.
type SwipeResult struct {
	Match   *models.RoomMatch
	AllDone bool
}

// Create opens a room and seats the creator. Codes are drawn from A-Z0-9;
// collisions with live rooms retry up to 10 times.
func (s *RoomService) Create(ctx context.Context, creatorSessionID, contentType string, maxParticipants, durationMinutes int) (*models.Room, error) {
	if contentType != models.ContentTypeMovie && contentType != models.ContentTypeTV && contentType != models.ContentTypeMixed {
		return nil, errs.InvalidRoomActionf("unsupported room content type %q", contentType)
	}
	if maxParticipants < minRoomParticipants || maxParticipants > maxRoomParticipants {
		return nil, errs.InvalidRoomActionf("rooms seat %d to %d participants", minRoomParticipants, maxRoomParticipants)
	}
	if durationMinutes < minRoomDuration || durationMinutes > maxRoomDuration {
		return nil, errs.InvalidRoomActionf("room duration must be %d to %d minutes", minRoomDuration, maxRoomDuration)
	}

	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		room := &models.Room{
			Code:             s.generateCode(),
			CreatorSessionID: creatorSessionID,
			Status:           models.RoomStatusWaiting,
			ContentType:      contentType,
			MaxParticipants:  maxParticipants,
			DurationMinutes:  durationMinutes,
		}

		err := s.rooms.Create(ctx, room)
		if err == nil {
			if _, err := s.rooms.InsertParticipant(ctx, room.ID, creatorSessionID, room.MaxParticipants); err != nil {
				return nil, err
			}
			s.logger.WithFields(logrus.Fields{
				"room_id": room.ID,
				"code":    room.Code,
			}).Info("Room created")
			return room, nil
		}
		if !errors.Is(err, errs.ErrConflict) {
			return nil, err
		}
	}
	return nil, errs.InvalidRoomActionf("could not allocate a unique room code")
}

// JoinOrRejoin seats a session in a waiting room. Existing participants get
// the current state back regardless of room status.
func (s *RoomService) JoinOrRejoin(ctx context.Context, sessionID, code string) (*RoomState, error) {
	room, err := s.rooms.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	participants, err := s.rooms.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.SessionID == sessionID {
			return &RoomState{Room: room, Participants: participants}, nil
		}
	}

	switch room.Status {
	case models.RoomStatusFinished:
		return nil, errs.InvalidRoomActionf("room %s is finished", code)
	case models.RoomStatusVoting:
		return nil, errs.ErrRoomAlreadyStarted
	}

	if len(participants) >= room.MaxParticipants {
		return nil, errs.ErrRoomFull
	}

	// The store insert re-checks capacity atomically; a concurrent join can
	// still take the last seat between the read above and the insert.
	seated, err := s.rooms.InsertParticipant(ctx, room.ID, sessionID, room.MaxParticipants)
	if err != nil {
		return nil, err
	}

	participants, err = s.rooms.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if !seated {
		// Lost the race: either another join took the last seat, or a
		// concurrent connect already seated this session.
		for _, p := range participants {
			if p.SessionID == sessionID {
				return &RoomState{Room: room, Participants: participants}, nil
			}
		}
		return nil, errs.ErrRoomFull
	}
	return &RoomState{Room: room, Participants: participants}, nil
}

// SubmitMood stores a participant's mood text and marks them ready.
func (s *RoomService) SubmitMood(ctx context.Context, sessionID, code, mood string) (*RoomState, error) {
	mood = strings.TrimSpace(mood)
	if len(mood) < moodMinLength || len(mood) > moodMaxLength {
		return nil, errs.InvalidRoomActionf("mood must be %d to %d characters", moodMinLength, moodMaxLength)
	}

	room, err := s.rooms.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, errs.InvalidRoomActionf("moods can only be submitted while waiting")
	}

	if err := s.rooms.SetMood(ctx, room.ID, sessionID, mood); err != nil {
		return nil, err
	}

	participants, err := s.rooms.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return &RoomState{Room: room, Participants: participants}, nil
}

// ForceStart lets the creator begin voting early: the room must still be
// waiting and at least one participant must be ready.
func (s *RoomService) ForceStart(ctx context.Context, sessionID, code string) ([]models.ContentItem, error) {
	room, err := s.rooms.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !room.IsCreator(sessionID) {
		return nil, errs.InvalidRoomActionf("only the creator can start voting")
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, errs.InvalidRoomActionf("room is not waiting")
	}

	participants, err := s.rooms.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	ready := 0
	for _, p := range participants {
		if p.IsReady {
			ready++
		}
	}
	if ready == 0 {
		return nil, errs.InvalidRoomActionf("no participant is ready")
	}

	return s.StartVoting(ctx, room, participants)
}

// StartVoting computes the pooled deck, persists it and flips the room to
// voting.
func (s *RoomService) StartVoting(ctx context.Context, room *models.Room, participants []models.RoomParticipant) ([]models.ContentItem, error) {
	deck, err := s.buildDeck(ctx, room.ContentType, participants)
	if err != nil {
		return nil, err
	}
	if len(deck) == 0 {
		return nil, errs.InvalidRoomActionf("no titles available for this room")
	}

	if err := s.rooms.SetDeck(ctx, room.ID, deck); err != nil {
		return nil, err
	}
	if err := s.rooms.UpdateStatus(ctx, room.ID, models.RoomStatusVoting); err != nil {
		return nil, err
	}
	room.Status = models.RoomStatusVoting

	s.logger.WithFields(logrus.Fields{
		"room_id":   room.ID,
		"deck_size": len(deck),
	}).Info("Room voting started")
	return deck, nil
}

// buildDeck pools one search per non-empty mood plus the joker layer, all in
// parallel, merges by first-seen tmdb id, shuffles and truncates.
func (s *RoomService) buildDeck(ctx context.Context, contentType string, participants []models.RoomParticipant) ([]models.ContentItem, error) {
	searchType := contentType
	if contentType == models.ContentTypeMixed {
		searchType = ""
	}

	var moods []string
	for _, p := range participants {
		if strings.TrimSpace(p.Mood) != "" {
			moods = append(moods, p.Mood)
		}
	}

	pools := make([][]index.Result, len(moods)+1)
	g, _ := errgroup.WithContext(ctx)
	for i, mood := range moods {
		i, mood := i, mood
		g.Go(func() error {
			pools[i] = s.searcher.Search(s.encoder.Encode(mood), moodSearchK, searchType)
			return nil
		})
	}
	g.Go(func() error {
		pools[len(moods)] = s.searcher.Search(s.encoder.Encode(jokerQuery), jokerK, searchType)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var deck []models.ContentItem
	seen := make(map[int64]bool)
	for _, pool := range pools {
		for _, result := range pool {
			if seen[result.Item.TmdbID] {
				continue
			}
			seen[result.Item.TmdbID] = true
			deck = append(deck, result.Item.Sanitized())
		}
	}

	s.rngMu.Lock()
	s.rng.Shuffle(len(deck), func(a, b int) {
		deck[a], deck[b] = deck[b], deck[a]
	})
	s.rngMu.Unlock()

	if len(deck) > deckSize {
		deck = deck[:deckSize]
	}
	return deck, nil
}

// RecordSwipe stores one swipe (first write wins) and, on a positive action,
// runs match detection. AllDone is true when every participant has swiped
// every title any participant has swiped.
func (s *RoomService) RecordSwipe(ctx context.Context, sessionID, code string, tmdbID int64, action models.RoomAction) (*SwipeResult, error) {
	room, err := s.rooms.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusVoting {
		return nil, errs.InvalidRoomActionf("room is not voting")
	}

	first, err := s.rooms.InsertInteraction(ctx, &models.RoomInteraction{
		RoomID:    room.ID,
		SessionID: sessionID,
		TmdbID:    tmdbID,
		Action:    action,
	})
	if err != nil {
		return nil, err
	}
	if !first {
		return &SwipeResult{}, nil
	}

	result := &SwipeResult{}

	participants, err := s.rooms.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	interactions, err := s.rooms.Interactions(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	if action == models.RoomActionLike || action == models.RoomActionSuperlike {
		if unanimous(participants, interactions, tmdbID) {
			created, err := s.rooms.InsertMatch(ctx, room.ID, tmdbID)
			if err != nil {
				return nil, err
			}
			if created {
				result.Match = &models.RoomMatch{RoomID: room.ID, TmdbID: tmdbID}
			}
		}
	}

	result.AllDone = allDone(participants, interactions)
	return result, nil
}

// unanimous reports whether every participant has liked or superliked tmdbID.
func unanimous(participants []models.RoomParticipant, interactions []models.RoomInteraction, tmdbID int64) bool {
	likers := make(map[string]bool)
	for _, i := range interactions {
		if i.TmdbID == tmdbID && (i.Action == models.RoomActionLike || i.Action == models.RoomActionSuperlike) {
			likers[i.SessionID] = true
		}
	}
	for _, p := range participants {
		if !likers[p.SessionID] {
			return false
		}
	}
	return len(participants) > 0
}

// allDone holds when the union of swiped titles is covered by every
// participant's own swipe set. Trivially false while nothing was swiped.
func allDone(participants []models.RoomParticipant, interactions []models.RoomInteraction) bool {
	if len(interactions) == 0 || len(participants) == 0 {
		return false
	}

	swiped := make(map[string]map[int64]bool, len(participants))
	for _, p := range participants {
		swiped[p.SessionID] = make(map[int64]bool)
	}
	union := make(map[int64]bool)
	for _, i := range interactions {
		if set, ok := swiped[i.SessionID]; ok {
			set[i.TmdbID] = true
		}
		union[i.TmdbID] = true
	}

	for _, set := range swiped {
		for tmdbID := range union {
			if !set[tmdbID] {
				return false
			}
		}
	}
	return true
}

// ForceFinish lets the creator end voting: positive swipes are scored
// (superlike 3, like 1), the top titles persisted as matches, and the room
// finished.
func (s *RoomService) ForceFinish(ctx context.Context, sessionID, code string) ([]models.RoomMatch, error) {
	room, err := s.rooms.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !room.IsCreator(sessionID) {
		return nil, errs.InvalidRoomActionf("only the creator can finish voting")
	}
	return s.complete(ctx, room)
}

// Complete ends voting without a creator check, for the everyone-has-swiped
// path.
func (s *RoomService) Complete(ctx context.Context, code string) ([]models.RoomMatch, error) {
	room, err := s.rooms.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, room)
}

func (s *RoomService) complete(ctx context.Context, room *models.Room) ([]models.RoomMatch, error) {
	if room.Status != models.RoomStatusVoting {
		return nil, errs.InvalidRoomActionf("room is not voting")
	}

	interactions, err := s.rooms.Interactions(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	ranked := weightedTop(interactions, topMatchCount)
	matches := make([]models.RoomMatch, 0, len(ranked))
	for _, tmdbID := range ranked {
		if _, err := s.rooms.InsertMatch(ctx, room.ID, tmdbID); err != nil {
			return nil, err
		}
		matches = append(matches, models.RoomMatch{RoomID: room.ID, TmdbID: tmdbID})
	}

	if err := s.Finish(ctx, room); err != nil {
		return nil, err
	}
	return matches, nil
}

// weightedTop scores positive interactions and returns up to k tmdb ids in
// descending score order, ties broken by id for determinism.
func weightedTop(interactions []models.RoomInteraction, k int) []int64 {
	scores := make(map[int64]int)
	for _, i := range interactions {
		switch i.Action {
		case models.RoomActionSuperlike:
			scores[i.TmdbID] += superlikeWeight
		case models.RoomActionLike:
			scores[i.TmdbID] += likeWeight
		}
	}

	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool {
		if scores[ids[a]] != scores[ids[b]] {
			return scores[ids[a]] > scores[ids[b]]
		}
		return ids[a] < ids[b]
	})

	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}

// Finish is the unconditional terminal transition.
func (s *RoomService) Finish(ctx context.Context, room *models.Room) error {
	if err := s.rooms.UpdateStatus(ctx, room.ID, models.RoomStatusFinished); err != nil {
		return err
	}
	room.Status = models.RoomStatusFinished
	return nil
}

// State loads the current room snapshot.
func (s *RoomService) State(ctx context.Context, code string) (*RoomState, error) {
	room, err := s.rooms.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	participants, err := s.rooms.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return &RoomState{Room: room, Participants: participants}, nil
}

// Deck returns the persisted voting deck.
func (s *RoomService) Deck(ctx context.Context, roomID int64) ([]models.ContentItem, error) {
	return s.rooms.Deck(ctx, roomID)
}

// Matches returns the room's recorded matches.
func (s *RoomService) Matches(ctx context.Context, roomID int64) ([]models.RoomMatch, error) {
	return s.rooms.Matches(ctx, roomID)
}

// CleanupExpired reaps abandoned rooms and purges session data from old
// finished rooms. Returns how many rooms were touched.
func (s *RoomService) CleanupExpired(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)

	deleted, err := s.rooms.DeleteAbandoned(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	purged, err := s.rooms.PurgeFinished(ctx, cutoff)
	if err != nil {
		return deleted, err
	}

	if deleted+purged > 0 {
		s.logger.WithFields(logrus.Fields{
			"deleted": deleted,
			"purged":  purged,
		}).Info("Room cleanup pass complete")
	}
	return deleted + purged, nil
}

func (s *RoomService) generateCode() string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[s.rng.Intn(len(roomCodeAlphabet))]
	}
	return string(code)
}

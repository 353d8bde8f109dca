package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/internal/index"
	"github.com/mooviq/mooviq/pkg/models"
)

func newRoomService(searcher *stubSearcher) (*RoomService, *memRoomStore) {
	store := newMemRoomStore()
	svc := NewRoomService(store, &stubEncoder{vectors: map[string][]float32{}}, searcher, quietLogger())
	return svc, store
}

func deckSearcher(n int) *stubSearcher {
	searcher := newStubSearcher()
	results := make([]index.Result, n)
	for i := 0; i < n; i++ {
		results[i] = index.Result{
			Item: models.ContentItem{
				TmdbID:      int64(100 + i),
				ContentType: models.ContentTypeMovie,
				Title:       fmt.Sprintf("Deck %d", i),
				VoteAverage: 7.0,
				Embedding:   axisVector(i),
			},
			Score: float32(0.9 - 0.01*float64(i)),
		}
	}
	searcher.results[models.ContentTypeMovie] = results
	searcher.results[""] = results
	return searcher
}

func TestCreateRoom(t *testing.T) {
	svc, store := newRoomService(deckSearcher(5))

	room, err := svc.Create(context.Background(), "sess-a", models.ContentTypeMovie, 4, 30)
	require.NoError(t, err)

	assert.Len(t, room.Code, roomCodeLength)
	for _, c := range room.Code {
		assert.Contains(t, roomCodeAlphabet, string(c))
	}
	assert.Equal(t, models.RoomStatusWaiting, room.Status)
	assert.True(t, room.IsCreator("sess-a"))

	participants, err := store.Participants(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, "sess-a", participants[0].SessionID)
}

func TestCreateRoomRejectsBadInput(t *testing.T) {
	svc, _ := newRoomService(deckSearcher(5))

	_, err := svc.Create(context.Background(), "sess-a", "podcast", 4, 30)
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)

	_, err = svc.Create(context.Background(), "sess-a", models.ContentTypeMovie, 1, 30)
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)

	_, err = svc.Create(context.Background(), "sess-a", models.ContentTypeMovie, 20, 30)
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)

	_, err = svc.Create(context.Background(), "sess-a", models.ContentTypeMovie, 4, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)

	_, err = svc.Create(context.Background(), "sess-a", models.ContentTypeMovie, 4, 240)
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)
}

func TestJoinStateMachine(t *testing.T) {
	svc, store := newRoomService(deckSearcher(5))
	ctx := context.Background()

	room, err := svc.Create(ctx, "sess-a", models.ContentTypeMovie, 2, 30)
	require.NoError(t, err)

	state, err := svc.JoinOrRejoin(ctx, "sess-b", room.Code)
	require.NoError(t, err)
	assert.Len(t, state.Participants, 2)

	// Room is at capacity now.
	_, err = svc.JoinOrRejoin(ctx, "sess-c", room.Code)
	assert.ErrorIs(t, err, errs.ErrRoomFull)

	// Rejoin returns the state without error.
	state, err = svc.JoinOrRejoin(ctx, "sess-b", room.Code)
	require.NoError(t, err)
	assert.Len(t, state.Participants, 2)

	// Once voting, newcomers are rejected.
	require.NoError(t, store.UpdateStatus(ctx, room.ID, models.RoomStatusVoting))
	store.participants[room.ID] = store.participants[room.ID][:1]
	_, err = svc.JoinOrRejoin(ctx, "sess-d", room.Code)
	assert.ErrorIs(t, err, errs.ErrRoomAlreadyStarted)

	_, err = svc.JoinOrRejoin(ctx, "sess-x", "ZZZZZZ")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestJoinCapacityHeldByStore(t *testing.T) {
	svc, store := newRoomService(deckSearcher(5))
	ctx := context.Background()

	room, err := svc.Create(ctx, "sess-a", models.ContentTypeMovie, 2, 30)
	require.NoError(t, err)

	// A concurrent join takes the last seat after the service has already
	// read the participant list.
	seated, err := store.InsertParticipant(ctx, room.ID, "sess-b", room.MaxParticipants)
	require.NoError(t, err)
	require.True(t, seated)

	_, err = svc.JoinOrRejoin(ctx, "sess-c", room.Code)
	assert.ErrorIs(t, err, errs.ErrRoomFull)

	// The guarded insert itself refuses the overflow.
	seated, err = store.InsertParticipant(ctx, room.ID, "sess-c", room.MaxParticipants)
	require.NoError(t, err)
	assert.False(t, seated)

	participants, err := store.Participants(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)
}

func TestSubmitMoodValidation(t *testing.T) {
	svc, _ := newRoomService(deckSearcher(5))
	ctx := context.Background()

	room, err := svc.Create(ctx, "sess-a", models.ContentTypeMovie, 4, 30)
	require.NoError(t, err)

	_, err = svc.SubmitMood(ctx, "sess-a", room.Code, "ab")
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)

	state, err := svc.SubmitMood(ctx, "sess-a", room.Code, "action adventure")
	require.NoError(t, err)
	assert.True(t, state.Participants[0].IsReady)
	assert.Equal(t, "action adventure", state.Participants[0].Mood)
}

func TestForceStartRules(t *testing.T) {
	svc, _ := newRoomService(deckSearcher(25))
	ctx := context.Background()

	room, err := svc.Create(ctx, "sess-a", models.ContentTypeMovie, 4, 30)
	require.NoError(t, err)

	// Non-creator cannot start.
	_, err = svc.JoinOrRejoin(ctx, "sess-b", room.Code)
	require.NoError(t, err)
	_, err = svc.ForceStart(ctx, "sess-b", room.Code)
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)

	// Nobody ready yet.
	_, err = svc.ForceStart(ctx, "sess-a", room.Code)
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)

	_, err = svc.SubmitMood(ctx, "sess-a", room.Code, "comedy heist")
	require.NoError(t, err)

	deck, err := svc.ForceStart(ctx, "sess-a", room.Code)
	require.NoError(t, err)
	assert.NotEmpty(t, deck)
	assert.LessOrEqual(t, len(deck), deckSize)

	// Deck payloads carry no embedding vectors.
	for _, item := range deck {
		assert.Nil(t, item.Embedding)
	}

	state, err := svc.State(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusVoting, state.Room.Status)
}

func TestDeckPoolingDeduplicatesAndTruncates(t *testing.T) {
	searcher := deckSearcher(30)
	svc, _ := newRoomService(searcher)

	participants := []models.RoomParticipant{
		{SessionID: "a", Mood: "action adventure", IsReady: true},
		{SessionID: "b", Mood: "comedy heist", IsReady: true},
	}

	deck, err := svc.buildDeck(context.Background(), models.ContentTypeMovie, participants)
	require.NoError(t, err)

	// Both moods return the same top-10; the joker adds nothing new, so the
	// dedup keeps exactly 10 unique titles.
	assert.Len(t, deck, moodSearchK)
	seen := map[int64]bool{}
	for _, item := range deck {
		assert.False(t, seen[item.TmdbID], "deck must not repeat titles")
		seen[item.TmdbID] = true
	}
}

func TestUnanimousMatchFlow(t *testing.T) {
	svc, store := newRoomService(deckSearcher(25))
	ctx := context.Background()

	room, err := svc.Create(ctx, "sess-a", models.ContentTypeMovie, 4, 30)
	require.NoError(t, err)
	_, err = svc.JoinOrRejoin(ctx, "sess-b", room.Code)
	require.NoError(t, err)
	_, err = svc.SubmitMood(ctx, "sess-a", room.Code, "space opera epic")
	require.NoError(t, err)
	_, err = svc.SubmitMood(ctx, "sess-b", room.Code, "slow burn thriller")
	require.NoError(t, err)
	_, err = svc.ForceStart(ctx, "sess-a", room.Code)
	require.NoError(t, err)

	// First like: no match yet.
	result, err := svc.RecordSwipe(ctx, "sess-a", room.Code, 100, models.RoomActionLike)
	require.NoError(t, err)
	assert.Nil(t, result.Match)
	assert.False(t, result.AllDone)

	// Second participant completes the unanimous like.
	result, err = svc.RecordSwipe(ctx, "sess-b", room.Code, 100, models.RoomActionLike)
	require.NoError(t, err)
	require.NotNil(t, result.Match)
	assert.Equal(t, int64(100), result.Match.TmdbID)
	assert.True(t, result.AllDone, "both have swiped the only swiped title")

	// A repeated swipe is ignored, no duplicate match.
	result, err = svc.RecordSwipe(ctx, "sess-a", room.Code, 100, models.RoomActionDislike)
	require.NoError(t, err)
	assert.Nil(t, result.Match)

	matches, err := store.Matches(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestAllDoneIsStrict(t *testing.T) {
	participants := []models.RoomParticipant{
		{SessionID: "a"}, {SessionID: "b"},
	}

	// a swiped 1 and 2, b swiped only 1: not done.
	interactions := []models.RoomInteraction{
		{SessionID: "a", TmdbID: 1, Action: models.RoomActionLike},
		{SessionID: "a", TmdbID: 2, Action: models.RoomActionDislike},
		{SessionID: "b", TmdbID: 1, Action: models.RoomActionLike},
	}
	assert.False(t, allDone(participants, interactions))

	// b catches up: done.
	interactions = append(interactions, models.RoomInteraction{
		SessionID: "b", TmdbID: 2, Action: models.RoomActionLike,
	})
	assert.True(t, allDone(participants, interactions))

	// Nothing swiped is trivially not done.
	assert.False(t, allDone(participants, nil))
}

func TestForceFinishWeightedScoring(t *testing.T) {
	svc, _ := newRoomService(deckSearcher(25))
	ctx := context.Background()

	room, err := svc.Create(ctx, "s1", models.ContentTypeMovie, 4, 30)
	require.NoError(t, err)
	_, err = svc.JoinOrRejoin(ctx, "s2", room.Code)
	require.NoError(t, err)
	_, err = svc.JoinOrRejoin(ctx, "s3", room.Code)
	require.NoError(t, err)
	_, err = svc.SubmitMood(ctx, "s1", room.Code, "anything fun works")
	require.NoError(t, err)
	_, err = svc.ForceStart(ctx, "s1", room.Code)
	require.NoError(t, err)

	var x, y, z int64 = 100, 101, 102
	swipes := []struct {
		session string
		tmdbID  int64
		action  models.RoomAction
	}{
		{"s1", x, models.RoomActionSuperlike},
		{"s1", y, models.RoomActionLike},
		{"s2", x, models.RoomActionLike},
		{"s2", z, models.RoomActionLike},
		{"s3", x, models.RoomActionLike},
		{"s3", z, models.RoomActionSuperlike},
	}
	for _, s := range swipes {
		_, err := svc.RecordSwipe(ctx, s.session, room.Code, s.tmdbID, s.action)
		require.NoError(t, err)
	}

	// Only the creator may finish.
	_, err = svc.ForceFinish(ctx, "s2", room.Code)
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)

	// X=3+1+1=5, Z=1+3=4, Y=1.
	matches, err := svc.ForceFinish(ctx, "s1", room.Code)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, x, matches[0].TmdbID)
	assert.Equal(t, z, matches[1].TmdbID)
	assert.Equal(t, y, matches[2].TmdbID)

	state, err := svc.State(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusFinished, state.Room.Status)

	// Finishing twice is rejected.
	_, err = svc.ForceFinish(ctx, "s1", room.Code)
	assert.ErrorIs(t, err, errs.ErrInvalidRoomAction)
}

func TestWeightedTopTruncatesToK(t *testing.T) {
	var interactions []models.RoomInteraction
	for i := int64(0); i < 8; i++ {
		interactions = append(interactions, models.RoomInteraction{
			SessionID: "a", TmdbID: i, Action: models.RoomActionLike,
		})
	}
	// Title 7 gets an extra superlike to take first place.
	interactions = append(interactions, models.RoomInteraction{
		SessionID: "b", TmdbID: 7, Action: models.RoomActionSuperlike,
	})

	top := weightedTop(interactions, topMatchCount)
	require.Len(t, top, topMatchCount)
	assert.Equal(t, int64(7), top[0])
}

func TestCleanupExpired(t *testing.T) {
	svc, store := newRoomService(deckSearcher(5))
	ctx := context.Background()

	room, err := svc.Create(ctx, "sess-a", models.ContentTypeMovie, 4, 30)
	require.NoError(t, err)

	// Age the room artificially past the expiry window.
	store.mu.Lock()
	aged := store.rooms[room.ID]
	aged.CreatedAt = aged.CreatedAt.Add(-2 * RoomExpiry)
	store.mu.Unlock()

	touched, err := svc.CleanupExpired(ctx, RoomExpiry)
	require.NoError(t, err)
	assert.Equal(t, int64(1), touched)

	_, err = svc.State(ctx, room.Code)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

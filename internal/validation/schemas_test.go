package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmotionRequestSchema(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	assert.True(t, sv.ValidateEmotionRequest(`{"emotion":"sad and tired","content_type":"movie","page":1}`).Valid)
	assert.False(t, sv.ValidateEmotionRequest(`{"content_type":"movie"}`).Valid)
	assert.False(t, sv.ValidateEmotionRequest(`{"emotion":"","content_type":"movie"}`).Valid)
	assert.False(t, sv.ValidateEmotionRequest(`{"emotion":"ok","page":9}`).Valid)
	assert.False(t, sv.ValidateEmotionRequest(`{"emotion":"ok","content_type":"podcast"}`).Valid)
}

func TestRoomCreateSchema(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	assert.True(t, sv.ValidateRoomCreate(`{"content_type":"mixed","max_participants":4,"duration_minutes":30,"creator_session_id":"abc"}`).Valid)
	assert.True(t, sv.ValidateRoomCreate(`{"content_type":"movie","max_participants":5,"duration_minutes":1,"creator_session_id":"abc"}`).Valid)
	assert.False(t, sv.ValidateRoomCreate(`{"content_type":"movie","max_participants":1,"creator_session_id":"abc"}`).Valid)
	assert.False(t, sv.ValidateRoomCreate(`{"content_type":"movie","max_participants":20,"duration_minutes":30,"creator_session_id":"abc"}`).Valid)
	assert.False(t, sv.ValidateRoomCreate(`{"content_type":"movie","max_participants":4,"duration_minutes":240,"creator_session_id":"abc"}`).Valid)
	assert.False(t, sv.ValidateRoomCreate(`{"content_type":"movie","max_participants":4,"duration_minutes":0,"creator_session_id":"abc"}`).Valid)
	assert.False(t, sv.ValidateRoomCreate(`{"content_type":"movie"}`).Valid)
}

func TestRatingSchema(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	assert.True(t, sv.ValidateRating(map[string]any{
		"tmdb_id": 550, "content_type": "movie", "rating": 8,
	}).Valid)
	assert.False(t, sv.ValidateRating(`{"tmdb_id":550,"content_type":"movie","rating":11}`).Valid)

	result := sv.ValidateRating(`{"content_type":"movie","rating":5}`)
	require.False(t, result.Valid)
	assert.NotNil(t, result.ToAPIError())
}

func TestWatchlistSchema(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	assert.True(t, sv.ValidateWatchlist(`{"tmdb_id":550,"content_type":"movie","status":"to_watch","from_recommendation":true,"recommendation_type":"hybrid","recommendation_score":87}`).Valid)
	assert.False(t, sv.ValidateWatchlist(`{"tmdb_id":550,"content_type":"movie","status":"paused"}`).Valid)
}

package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mooviq/mooviq/internal/validation"
)

// The request-shape tests never reach a service, so nil services are fine:
// schema validation rejects before any call is made.
func newRecommendationTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	validator, err := validation.NewSchemaValidator()
	require.NoError(t, err)

	h := NewRecommendationHandler(nil, nil, validator, logger)

	router := gin.New()
	router.POST("/recommendations/current-emotion", h.CurrentEmotion)
	router.POST("/recommendations/hybrid", h.Hybrid)
	router.POST("/public/recommendations/emotion", h.PublicEmotion)
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCurrentEmotionRejectsEmptyBody(t *testing.T) {
	router := newRecommendationTestRouter(t)

	w := postJSON(router, "/recommendations/current-emotion", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST_BODY")
}

func TestCurrentEmotionRejectsMissingEmotion(t *testing.T) {
	router := newRecommendationTestRouter(t)

	w := postJSON(router, "/recommendations/current-emotion", `{"content_type":"movie"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestCurrentEmotionRejectsPageOutOfRange(t *testing.T) {
	router := newRecommendationTestRouter(t)

	w := postJSON(router, "/recommendations/current-emotion", `{"emotion":"cozy sunday","page":6}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestHybridRejectsMissingEmotionText(t *testing.T) {
	router := newRecommendationTestRouter(t)

	w := postJSON(router, "/recommendations/hybrid", `{"content_type":"tv"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestPublicEmotionRejectsUnknownContentType(t *testing.T) {
	router := newRecommendationTestRouter(t)

	w := postJSON(router, "/public/recommendations/emotion", `{"emotion":"excited","content_type":"podcast"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestDefaultContentType(t *testing.T) {
	assert.Equal(t, "movie", defaultContentType(""))
	assert.Equal(t, "tv", defaultContentType("tv"))
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/internal/metrics"
	"github.com/mooviq/mooviq/internal/middleware"
	"github.com/mooviq/mooviq/internal/services"
	"github.com/mooviq/mooviq/internal/validation"
	"github.com/mooviq/mooviq/pkg/models"
)

type RecommendationHandler struct {
	recs      *services.RecommendationService
	emotion   *services.EmotionAnalyzer
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewRecommendationHandler(
	recs *services.RecommendationService,
	emotion *services.EmotionAnalyzer,
	validator *validation.SchemaValidator,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		recs:      recs,
		emotion:   emotion,
		validator: validator,
		logger:    logger,
	}
}

type emotionRequest struct {
	Emotion     string `json:"emotion"`
	ContentType string `json:"content_type"`
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
}

type hybridRequest struct {
	EmotionText string `json:"emotion_text"`
	ContentType string `json:"content_type"`
}

// CurrentEmotion serves mode current_emotion for the authenticated user.
func (h *RecommendationHandler) CurrentEmotion(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if result := h.validator.ValidateEmotionRequest(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var req emotionRequest
	if !bindJSON(c, body, &req) {
		return
	}
	req.ContentType = defaultContentType(req.ContentType)

	userID := middleware.GetUserID(c)
	envelope, err := h.recs.CurrentEmotion(c.Request.Context(), userID, req.Emotion, req.ContentType, req.Page)
	if err != nil {
		metrics.RecommendationRequests.WithLabelValues(models.RecTypeCurrentEmotion, "error").Inc()
		h.fail(c, err, "current-emotion recommendation failed")
		return
	}

	metrics.RecommendationRequests.WithLabelValues(models.RecTypeCurrentEmotion, "ok").Inc()
	c.JSON(http.StatusOK, envelope)
}

// Hybrid blends current emotion with the stored profile; page comes from the
// query string.
func (h *RecommendationHandler) Hybrid(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if result := h.validator.ValidateHybridRequest(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var req hybridRequest
	if !bindJSON(c, body, &req) {
		return
	}
	req.ContentType = defaultContentType(req.ContentType)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	userID := middleware.GetUserID(c)
	envelope, err := h.recs.Hybrid(c.Request.Context(), userID, req.EmotionText, req.ContentType, page)
	if err != nil {
		metrics.RecommendationRequests.WithLabelValues(models.RecTypeHybrid, "error").Inc()
		h.fail(c, err, "hybrid recommendation failed")
		return
	}

	metrics.RecommendationRequests.WithLabelValues(models.RecTypeHybrid, "ok").Inc()
	c.JSON(http.StatusOK, envelope)
}

// History recommends from the user's rating history alone.
func (h *RecommendationHandler) History(c *gin.Context) {
	contentType := defaultContentType(c.Query("content_type"))
	userID := middleware.GetUserID(c)

	envelope, err := h.recs.HistoryBased(c.Request.Context(), userID, contentType)
	if err != nil {
		metrics.RecommendationRequests.WithLabelValues(models.RecTypeHistoryBased, "error").Inc()
		h.fail(c, err, "history recommendation failed")
		return
	}

	metrics.RecommendationRequests.WithLabelValues(models.RecTypeHistoryBased, "ok").Inc()
	c.JSON(http.StatusOK, envelope)
}

// ProfileBased recommends from the stored emotional profile; users without
// one get 404 NO_PROFILE.
func (h *RecommendationHandler) ProfileBased(c *gin.Context) {
	contentType := defaultContentType(c.Query("content_type"))
	userID := middleware.GetUserID(c)

	envelope, err := h.recs.ProfileBased(c.Request.Context(), userID, contentType)
	if err != nil {
		if errors.Is(err, errs.ErrNoProfile) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "NO_PROFILE",
					"message": "No emotional profile yet; rate some titles first",
				},
			})
			return
		}
		metrics.RecommendationRequests.WithLabelValues(models.RecTypeProfileBased, "error").Inc()
		h.fail(c, err, "profile-based recommendation failed")
		return
	}

	metrics.RecommendationRequests.WithLabelValues(models.RecTypeProfileBased, "ok").Inc()
	c.JSON(http.StatusOK, envelope)
}

// PublicEmotion is the unauthenticated browse surface; no rating exclusion.
func (h *RecommendationHandler) PublicEmotion(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if result := h.validator.ValidateEmotionRequest(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var req emotionRequest
	if !bindJSON(c, body, &req) {
		return
	}
	req.ContentType = defaultContentType(req.ContentType)
	if req.PageSize <= 0 {
		req.PageSize = services.PageSize
	}

	envelope, err := h.recs.PublicEmotion(c.Request.Context(), req.Emotion, req.ContentType, req.Page, req.PageSize, nil)
	if err != nil {
		metrics.RecommendationRequests.WithLabelValues(models.RecTypeEmotionPublic, "error").Inc()
		h.fail(c, err, "public emotion recommendation failed")
		return
	}

	metrics.RecommendationRequests.WithLabelValues(models.RecTypeEmotionPublic, "ok").Inc()
	c.JSON(http.StatusOK, envelope)
}

func (h *RecommendationHandler) fail(c *gin.Context, err error, msg string) {
	h.logger.WithError(err).WithField("user_id", middleware.GetUserID(c)).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "RECOMMENDATION_FAILED",
			"message": "Failed to generate recommendations",
		},
	})
}

func defaultContentType(contentType string) string {
	if contentType == "" {
		return models.ContentTypeMovie
	}
	return contentType
}

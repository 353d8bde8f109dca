package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/internal/middleware"
	"github.com/mooviq/mooviq/internal/services"
	"github.com/mooviq/mooviq/internal/store"
	"github.com/mooviq/mooviq/internal/validation"
	"github.com/mooviq/mooviq/pkg/models"
)

const historyLogLimit = 50

type UserHandler struct {
	stores    *store.Stores
	emotion   *services.EmotionAnalyzer
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewUserHandler(
	stores *store.Stores,
	emotion *services.EmotionAnalyzer,
	validator *validation.SchemaValidator,
	logger *logrus.Logger,
) *UserHandler {
	return &UserHandler{
		stores:    stores,
		emotion:   emotion,
		validator: validator,
		logger:    logger,
	}
}

type ratingRequest struct {
	TmdbID      int64  `json:"tmdb_id"`
	ContentType string `json:"content_type"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment"`
}

// SubmitRating upserts the rating and folds it into the emotional profile.
func (h *UserHandler) SubmitRating(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if result := h.validator.ValidateRating(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var req ratingRequest
	if !bindJSON(c, body, &req) {
		return
	}
	userID := middleware.GetUserID(c)

	if err := h.stores.Ratings.Upsert(c.Request.Context(), &models.UserRating{
		UserID:      userID,
		TmdbID:      req.TmdbID,
		ContentType: req.ContentType,
		Rating:      req.Rating,
		Comment:     req.Comment,
	}); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to store rating")
		c.JSON(http.StatusInternalServerError, internalError("RATING_FAILED", "Failed to store rating"))
		return
	}

	profile, err := h.emotion.UpdateProfile(c.Request.Context(), userID, req.TmdbID, req.Rating, req.ContentType)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, internalError("TITLE_NOT_FOUND", "Unknown title"))
			return
		}
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to update emotional profile")
		c.JSON(http.StatusInternalServerError, internalError("PROFILE_UPDATE_FAILED", "Failed to update profile"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Rating recorded",
		"profile": profile,
	})
}

// GetRatings lists the user's ratings, most recent first.
func (h *UserHandler) GetRatings(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ratings, err := h.stores.Ratings.ByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to list ratings")
		c.JSON(http.StatusInternalServerError, internalError("RATINGS_FAILED", "Failed to list ratings"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ratings": ratings, "total": len(ratings)})
}

// GetProfile returns the stored emotional profile.
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)
	profile, err := h.emotion.ProfileOf(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, errs.ErrNoProfile) {
			c.JSON(http.StatusNotFound, internalError("NO_PROFILE", "No emotional profile yet"))
			return
		}
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load profile")
		c.JSON(http.StatusInternalServerError, internalError("PROFILE_FAILED", "Failed to load profile"))
		return
	}
	c.JSON(http.StatusOK, profile)
}

type watchlistRequest struct {
	TmdbID              int64   `json:"tmdb_id"`
	ContentType         string  `json:"content_type"`
	Status              string  `json:"status"`
	FromRecommendation  bool    `json:"from_recommendation"`
	RecommendationType  string  `json:"recommendation_type"`
	RecommendationScore float64 `json:"recommendation_score"`
}

// AddWatchlist saves a title, optionally traced back to the recommendation
// that surfaced it.
func (h *UserHandler) AddWatchlist(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if result := h.validator.ValidateWatchlist(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var req watchlistRequest
	if !bindJSON(c, body, &req) {
		return
	}
	if req.Status == "" {
		req.Status = models.WatchlistToWatch
	}
	userID := middleware.GetUserID(c)

	entry := &models.WatchlistEntry{
		UserID:              userID,
		TmdbID:              req.TmdbID,
		ContentType:         req.ContentType,
		Status:              req.Status,
		FromRecommendation:  req.FromRecommendation,
		RecommendationType:  req.RecommendationType,
		RecommendationScore: req.RecommendationScore,
	}
	if err := h.stores.Watchlist.Upsert(c.Request.Context(), entry); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to save watchlist entry")
		c.JSON(http.StatusInternalServerError, internalError("WATCHLIST_FAILED", "Failed to save watchlist entry"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Saved to watchlist"})
}

// GetWatchlist lists entries, optionally filtered by status.
func (h *UserHandler) GetWatchlist(c *gin.Context) {
	userID := middleware.GetUserID(c)
	entries, err := h.stores.Watchlist.ByUser(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to list watchlist")
		c.JSON(http.StatusInternalServerError, internalError("WATCHLIST_FAILED", "Failed to list watchlist"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"watchlist": entries, "total": len(entries)})
}

// UpdateWatchlistStatus moves an entry between to_watch/watching/completed.
func (h *UserHandler) UpdateWatchlistStatus(c *gin.Context) {
	var req struct {
		TmdbID      int64  `json:"tmdb_id"`
		ContentType string `json:"content_type"`
		Status      string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, internalError("INVALID_REQUEST_BODY", "Invalid request body format"))
		return
	}
	switch req.Status {
	case models.WatchlistToWatch, models.WatchlistWatching, models.WatchlistCompleted:
	default:
		c.JSON(http.StatusBadRequest, internalError("INVALID_STATUS", "Unknown watchlist status"))
		return
	}

	userID := middleware.GetUserID(c)
	err := h.stores.Watchlist.SetStatus(c.Request.Context(), userID, req.TmdbID, req.ContentType, req.Status)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, internalError("NOT_FOUND", "Watchlist entry not found"))
			return
		}
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to update watchlist status")
		c.JSON(http.StatusInternalServerError, internalError("WATCHLIST_FAILED", "Failed to update watchlist"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Watchlist updated"})
}

// RemoveWatchlist deletes one entry.
func (h *UserHandler) RemoveWatchlist(c *gin.Context) {
	tmdbID, err := strconv.ParseInt(c.Query("tmdb_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, internalError("INVALID_TMDB_ID", "tmdb_id query parameter is required"))
		return
	}
	contentType := defaultContentType(c.Query("content_type"))

	userID := middleware.GetUserID(c)
	if err := h.stores.Watchlist.Remove(c.Request.Context(), userID, tmdbID, contentType); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to remove watchlist entry")
		c.JSON(http.StatusInternalServerError, internalError("WATCHLIST_FAILED", "Failed to remove watchlist entry"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Removed from watchlist"})
}

// HistoryLog returns the user's recently served recommendations.
func (h *UserHandler) HistoryLog(c *gin.Context) {
	userID := middleware.GetUserID(c)
	logs, err := h.stores.RecLog.RecentByUser(c.Request.Context(), userID, historyLogLimit)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load recommendation history")
		c.JSON(http.StatusInternalServerError, internalError("HISTORY_FAILED", "Failed to load recommendation history"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": logs, "total": len(logs)})
}

func internalError(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

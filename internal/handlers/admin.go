package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/index"
	"github.com/mooviq/mooviq/internal/metrics"
	"github.com/mooviq/mooviq/internal/services"
	"github.com/mooviq/mooviq/internal/store"
	"github.com/mooviq/mooviq/pkg/models"
)

const (
	defaultContentLimit = 50
	maxContentLimit     = 500
)

type AdminHandler struct {
	idx     *index.VectorIndex
	ingest  *services.IngestService
	content *store.ContentStore
	logger  *logrus.Logger
}

func NewAdminHandler(
	idx *index.VectorIndex,
	ingest *services.IngestService,
	content *store.ContentStore,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		idx:     idx,
		ingest:  ingest,
		content: content,
		logger:  logger,
	}
}

// Stats reports index and catalog sizes.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats := h.idx.Stats()

	movies, err := h.content.Count(c.Request.Context(), models.ContentTypeMovie)
	if err != nil {
		h.logger.WithError(err).Error("Failed to count stored movies")
		c.JSON(http.StatusInternalServerError, internalError("STATS_FAILED", "Failed to load stats"))
		return
	}
	shows, err := h.content.Count(c.Request.Context(), models.ContentTypeTV)
	if err != nil {
		h.logger.WithError(err).Error("Failed to count stored tv shows")
		c.JSON(http.StatusInternalServerError, internalError("STATS_FAILED", "Failed to load stats"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"index": stats,
		"stored": gin.H{
			"movie": movies,
			"tv":    shows,
		},
	})
}

// Content pages through indexed items for inspection.
func (h *AdminHandler) Content(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultContentLimit)))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxContentLimit {
		limit = defaultContentLimit
	}

	items, total := h.idx.Items(offset, limit, c.Query("content_type"))
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// Populate runs one ingest batch from the persisted cursor.
func (h *AdminHandler) Populate(c *gin.Context) {
	contentType := defaultContentType(c.Query("content_type"))
	batchPages, _ := strconv.Atoi(c.Query("batch_pages"))

	report, err := h.ingest.PopulateContinue(c.Request.Context(), contentType, batchPages)
	if err != nil {
		h.logger.WithError(err).WithField("content_type", contentType).Error("Bulk ingest failed")
		c.JSON(http.StatusInternalServerError, internalError("INGEST_FAILED", "Bulk ingest failed"))
		return
	}

	metrics.IngestedItems.WithLabelValues(contentType).Add(float64(report.Added))
	metrics.IndexSize.Set(float64(report.IndexStats.TotalItems))

	c.JSON(http.StatusOK, report)
}

// Prewarm refreshes the public detail cache for the current top titles.
func (h *AdminHandler) Prewarm(c *gin.Context) {
	contentType := defaultContentType(c.Query("content_type"))
	if err := h.ingest.PrewarmPopular(c.Request.Context(), contentType); err != nil {
		h.logger.WithError(err).WithField("content_type", contentType).Error("Prewarm failed")
		c.JSON(http.StatusInternalServerError, internalError("PREWARM_FAILED", "Prewarm failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prewarm complete", "content_type": contentType})
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/database"
	"github.com/mooviq/mooviq/internal/index"
)

type HealthHandler struct {
	db     *database.Database
	idx    *index.VectorIndex
	logger *logrus.Logger
}

func NewHealthHandler(db *database.Database, idx *index.VectorIndex, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, idx: idx, logger: logger}
}

// Check pings both backing stores and reports the index size. The service
// stays "degraded" rather than unhealthy while the index is empty.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	components := gin.H{}

	if err := h.db.PG.Ping(ctx); err != nil {
		components["postgres"] = "down"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		components["postgres"] = "up"
	}

	if err := h.db.Redis.Ping(ctx).Err(); err != nil {
		components["redis"] = "down"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		components["redis"] = "up"
	}

	indexed := h.idx.Len()
	components["index_items"] = indexed
	if status == "healthy" && indexed == 0 {
		status = "degraded"
	}

	c.JSON(httpStatus, gin.H{
		"status":     status,
		"components": components,
	})
}

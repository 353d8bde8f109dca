package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mooviq/mooviq/internal/metrics"
)

// Metrics records request latency per top-level route group.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RequestDuration.WithLabelValues(routeGroup(c.FullPath())).
			Observe(time.Since(start).Seconds())
	}
}

func routeGroup(path string) string {
	if path == "" {
		return "unmatched"
	}
	trimmed := strings.TrimPrefix(path, "/api/v1")
	parts := strings.SplitN(strings.TrimPrefix(trimmed, "/"), "/", 2)
	if parts[0] == "" {
		return "root"
	}
	return parts[0]
}

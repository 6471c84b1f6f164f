// Package admin exposes the node's local debug/admin HTTP surface:
// health and readiness probes, Prometheus metrics, a status snapshot, and
// the alert websocket stream. Grounded on the FD teacher's
// internal/api/router.go and internal/api/middleware.go.
package admin

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gatenet/edge-node/internal/observability"
)

// loggingMiddleware logs each request with slog and records HTTP latency.
func loggingMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		log.Info("admin request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", duration.String(),
		)

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path, fmt.Sprintf("%d", status),
		).Observe(duration.Seconds())
	}
}

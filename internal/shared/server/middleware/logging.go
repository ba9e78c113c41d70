package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		ownerID, _ := c.Get(ownerIDKey)
		anonymous, _ := c.Get(anonymousKey)
		reportID, _ := c.Get("reportId")
		label, _ := c.Get("label")

		telemetry.Info("request.complete", map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"owner_id":    ownerID,
			"anonymous":   anonymous,
			"report_id":   reportID,
			"label":       label,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		})
	}
}

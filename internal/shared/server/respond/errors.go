package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/shared/telemetry"
)

// Error codes shared by every handler.
const (
	CodeValidation  = "validation_error"
	CodeNotFound    = "not_found"
	CodeInternal    = "internal_error"
	CodeCancelled   = "cancelled"
	CodeRateLimited = "rate_limited"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error logs the failure and aborts with a standardized error body. 5xx are
// logged at error level, everything else at warn.
func Error(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if ownerID := c.GetString("ownerId"); ownerID != "" {
		fields["owner_id"] = ownerID
	}
	if reportID := c.GetString("reportId"); reportID != "" {
		fields["report_id"] = reportID
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{Code: code, Message: message, Details: details},
	})
}

// Validation responds 400.
func Validation(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeValidation, message, nil)
}

// NotFound responds 404.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message, nil)
}

// Internal responds 500. The cause is logged, never returned to the caller.
func Internal(c *gin.Context, message string, cause error) {
	if cause != nil {
		telemetry.Error("http.internal", map[string]any{
			"request_id": c.GetString("requestId"),
			"path":       c.Request.URL.Path,
			"error":      cause.Error(),
		})
	}
	Error(c, http.StatusInternalServerError, CodeInternal, message, nil)
}

// Cancelled responds 503 for work abandoned because the request context ended.
func Cancelled(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, CodeCancelled, message, nil)
}

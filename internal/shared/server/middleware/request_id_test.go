package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestIDRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFromContext(c)) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func TestRequestIDKeepsValidHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set("X-Request-Id", "trace-abc.123")
	resp := httptest.NewRecorder()
	requestIDRouter().ServeHTTP(resp, req)

	assert.Equal(t, "trace-abc.123", resp.Body.String())
	assert.Equal(t, "trace-abc.123", resp.Header().Get("X-Request-Id"))
}

func TestRequestIDReplacesBadHeader(t *testing.T) {
	for _, bad := range []string{"", "has space", "<script>", strings.Repeat("a", 65)} {
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		req.Header.Set("X-Request-Id", bad)
		resp := httptest.NewRecorder()
		requestIDRouter().ServeHTTP(resp, req)

		_, err := uuid.Parse(resp.Body.String())
		require.NoError(t, err, "header %q", bad)
	}
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	resp := httptest.NewRecorder()
	requestIDRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), `"code":"internal_error"`)
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

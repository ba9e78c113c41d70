package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func principalRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Principal())
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, OwnerIDFromContext(c))
	})
	router.OPTIONS("/whoami", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestPrincipalUsesUserHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-Id", "  owner-42 ")
	resp := httptest.NewRecorder()
	principalRouter().ServeHTTP(resp, req)

	if resp.Body.String() != "owner-42" {
		t.Fatalf("expected owner-42, got %q", resp.Body.String())
	}
}

func TestPrincipalFallsBackToClientIP(t *testing.T) {
	router := principalRouter()

	first := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	resp1 := httptest.NewRecorder()
	router.ServeHTTP(resp1, first)

	second := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	second.RemoteAddr = "10.0.0.1:5678"
	resp2 := httptest.NewRecorder()
	router.ServeHTTP(resp2, second)

	got := resp1.Body.String()
	if !strings.HasPrefix(got, "anon:") {
		t.Fatalf("expected anonymous principal, got %q", got)
	}
	if got != resp2.Body.String() {
		t.Fatalf("expected stable principal for the same IP, got %q and %q", got, resp2.Body.String())
	}
}

func TestPrincipalAllowsOptionsWithoutIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/whoami", nil)
	resp := httptest.NewRecorder()
	principalRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

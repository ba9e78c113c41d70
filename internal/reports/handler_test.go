package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditdocs-backend/internal/shared/server/middleware"
)

func newTestRouter(repo Repo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Principal())
	NewHandler(repo).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestHandlerGetReturnsOwnedReport(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, Report{ID: "r1", OwnerID: "owner-1", FileName: "a.pdf", Status: StatusQueued}))
	require.NoError(t, repo.Complete(ctx, Report{
		ID:                 "r1",
		Label:              "credit-report",
		ClassificationTier: "heuristic",
		ExtractionTier:     "primary",
		Record:             map[string]any{"summary": "ok"},
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/r1", nil)
	req.Header.Set("X-User-Id", "owner-1")
	resp := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var got Report
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "credit-report", got.Label)
	assert.Equal(t, "ok", got.Record["summary"])
	assert.NotNil(t, got.CompletedAt)
}

func TestHandlerGetHidesOtherOwners(t *testing.T) {
	repo := NewMemoryRepo()
	require.NoError(t, repo.Create(context.Background(), Report{ID: "r1", OwnerID: "owner-1", Status: StatusQueued}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/r1", nil)
	req.Header.Set("X-User-Id", "owner-2")
	resp := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandlerGetMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/nope", nil)
	resp := httptest.NewRecorder()
	newTestRouter(NewMemoryRepo()).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandlerListNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, Report{ID: "old", OwnerID: "o", Status: StatusQueued, CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, Report{ID: "new", OwnerID: "o", Status: StatusQueued, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, Report{ID: "other", OwnerID: "x", Status: StatusQueued, CreatedAt: base}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports?limit=5", nil)
	req.Header.Set("X-User-Id", "o")
	resp := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Items []Report `json:"items"`
		Limit int      `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "new", body.Items[0].ID)
	assert.Equal(t, "old", body.Items[1].ID)
	assert.Equal(t, 5, body.Limit)
}

func TestMemoryRepoFail(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, Report{ID: "r1", OwnerID: "o", Status: StatusProcessing}))
	require.NoError(t, repo.Fail(ctx, "r1", "document not found"))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "document not found", *got.Error)
	assert.True(t, got.Terminal())

	assert.ErrorIs(t, repo.Fail(ctx, "missing", "x"), ErrNotFound)
}

func TestHandlerThrottlesPendingPolls(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, Report{ID: "r1", OwnerID: "owner-1", Status: StatusQueued}))

	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	h := &Handler{Repo: repo, polls: newPollLimiter(2*time.Second, func() time.Time { return now })}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Principal())
	h.RegisterRoutes(r.Group("/api/v1"))

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/r1", nil)
		req.Header.Set("X-User-Id", "owner-1")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp
	}

	assert.Equal(t, http.StatusOK, get().Code)
	resp := get()
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "2", resp.Header().Get("Retry-After"))

	now = now.Add(2 * time.Second)
	assert.Equal(t, http.StatusOK, get().Code)

	// Finished reports are never throttled.
	require.NoError(t, repo.Fail(ctx, "r1", "boom"))
	assert.Equal(t, http.StatusOK, get().Code)
	assert.Equal(t, http.StatusOK, get().Code)
}

func TestPollLimiterWait(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	l := newPollLimiter(time.Second, func() time.Time { return now })

	ok, _ := l.Allow("o", "r")
	require.True(t, ok)

	now = now.Add(300 * time.Millisecond)
	ok, wait := l.Allow("o", "r")
	assert.False(t, ok)
	assert.Equal(t, 700*time.Millisecond, wait)
	assert.Equal(t, 1, retryAfterSeconds(wait))

	ok, _ = l.Allow("o", "other")
	assert.True(t, ok)

	l.Forget("o", "r")
	ok, _ = l.Allow("o", "r")
	assert.True(t, ok)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditdocs-backend/internal/classify"
	"creditdocs-backend/internal/reports"
	"creditdocs-backend/internal/shared/config"
	"creditdocs-backend/internal/shared/server/middleware"
)

func TestHealthSkipsPrincipal(t *testing.T) {
	r := NewRouter(RouterDeps{Config: config.Config{}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"ok":true}`, resp.Body.String())
}

func TestHealthPingsDatabase(t *testing.T) {
	database, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer database.Close()
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	r := NewRouter(RouterDeps{Config: config.Config{}, DB: database})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"database":"up"`)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMeReportsPrincipal(t *testing.T) {
	r := NewRouter(RouterDeps{Config: config.Config{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("X-User-Id", "owner-7")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "owner-7", body["ownerId"])
	assert.Equal(t, false, body["anonymous"])

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body["ownerId"].(string), "anon:"))
	assert.Equal(t, true, body["anonymous"])
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewRouter(RouterDeps{Config: config.Config{}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "pipeline_started_total")
}

func TestRouterMountsReports(t *testing.T) {
	repo := reports.NewMemoryRepo()
	require.NoError(t, repo.Create(context.Background(), reports.Report{
		ID: "r1", OwnerID: "owner-1", FileName: "a.pdf", Status: reports.StatusQueued, CreatedAt: time.Now(),
	}))
	r := NewRouter(RouterDeps{Config: config.Config{}, Reports: reports.NewHandler(repo)})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/r1", nil)
	req.Header.Set("X-User-Id", "owner-1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestClassifyIsRateLimitedPerOwner(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := middleware.NewRateLimiter(func() time.Time { return now })
	r := NewRouter(RouterDeps{
		Config:   config.Config{},
		Classify: classify.NewHandler(classify.New(classify.DefaultConfig(), nil, nil, nil)),
		Limiter:  limiter,
	})

	post := func(owner string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", strings.NewReader(`{"text":"hello there"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-Id", owner)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, post("owner-1"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, post("owner-1"))
	assert.Equal(t, http.StatusOK, post("owner-2"))
}

func TestReadsAreNotRateLimited(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := middleware.NewRateLimiter(func() time.Time { return now })
	r := NewRouter(RouterDeps{Config: config.Config{}, Limiter: limiter})

	for i := 0; i < 50; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
		require.Equal(t, http.StatusOK, resp.Code)
	}
}

func TestAddr(t *testing.T) {
	assert.Equal(t, ":8080", Addr(""))
	assert.Equal(t, ":9000", Addr("9000"))
	assert.Equal(t, ":9000", Addr(":9000"))
}

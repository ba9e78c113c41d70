package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/classify"
	"creditdocs-backend/internal/documents"
	"creditdocs-backend/internal/knowledge"
	"creditdocs-backend/internal/reports"
	"creditdocs-backend/internal/shared/config"
	"creditdocs-backend/internal/shared/metrics"
	"creditdocs-backend/internal/shared/server/middleware"
	"creditdocs-backend/internal/shared/server/respond"
	"creditdocs-backend/internal/shared/storage/db"
)

const (
	rateGroupAnalyze = "ANALYZE"
	rateGroupQuery   = "QUERY"
)

// RouterDeps are the handlers mounted under /api/v1. Nil handlers are skipped.
type RouterDeps struct {
	Config    config.Config
	Documents *documents.Handler
	Reports   *reports.Handler
	Classify  *classify.Handler
	Knowledge *knowledge.Handler
	Limiter   *middleware.RateLimiter
	// DB, when set, is pinged by the health check.
	DB *sql.DB
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.DB))

	api.Use(
		middleware.Principal(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				rateGroupAnalyze: {Rate: 0.5, Burst: 5},
				rateGroupQuery:   {Rate: 2, Burst: 20},
			},
			GroupFor: rateGroupFor,
			Limiter:  deps.Limiter,
		}),
	)
	registerMeRoutes(api)
	if deps.Documents != nil {
		deps.Documents.RegisterRoutes(api)
	}
	if deps.Reports != nil {
		deps.Reports.RegisterRoutes(api)
	}
	if deps.Classify != nil {
		deps.Classify.RegisterRoutes(api)
	}
	if deps.Knowledge != nil {
		deps.Knowledge.RegisterRoutes(api)
	}

	return r
}

// healthHandler answers 200 while the process is up. With a database it also
// reports the pool and answers 503 when the ping fails.
func healthHandler(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if database == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		if err := db.Ping(c.Request.Context(), database, 2*time.Second); err != nil {
			respond.JSON(c, http.StatusServiceUnavailable, gin.H{"ok": false, "database": "down"})
			return
		}
		stats := database.Stats()
		respond.OK(c, gin.H{"ok": true, "database": "up", "openConns": stats.OpenConnections})
	}
}

// rateGroupFor charges uploads against the analyze budget and the inference
// backed endpoints against the query budget. Reads are not limited.
func rateGroupFor(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return ""
	}
	switch c.FullPath() {
	case "/api/v1/documents", "/api/v1/documents/analyze":
		return rateGroupAnalyze
	case "/api/v1/classify", "/api/v1/knowledge/query":
		return rateGroupQuery
	}
	return ""
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}

package reports

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/shared/server/middleware"
	"creditdocs-backend/internal/shared/server/respond"
)

const maxListLimit = 100

// Handler serves stored reports.
type Handler struct {
	Repo  Repo
	polls *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo) *Handler {
	return &Handler{Repo: repo, polls: newPollLimiter(pollLimitWindow, nil)}
}

// RegisterRoutes attaches report routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reports/:id", h.get)
	rg.GET("/reports", h.list)
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set("reportId", id)

	report, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.NotFound(c, "report not found")
			return
		}
		respond.Internal(c, "failed to load report", err)
		return
	}
	// Reports are only visible to the principal that created them.
	owner := middleware.OwnerIDFromContext(c)
	if report.OwnerID != owner {
		respond.NotFound(c, "report not found")
		return
	}
	if report.Terminal() {
		h.polls.Forget(owner, id)
	} else if ok, wait := h.polls.Allow(owner, id); !ok {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		respond.Error(c, http.StatusTooManyRequests, "poll_too_fast", "report is still processing", gin.H{"status": report.Status})
		return
	}
	respond.OK(c, report)
}

func (h *Handler) list(c *gin.Context) {
	limit := parseInt(c.Query("limit"), 20)
	if limit <= 0 || limit > maxListLimit {
		limit = 20
	}
	offset := parseInt(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	items, err := h.Repo.ListByOwner(c.Request.Context(), middleware.OwnerIDFromContext(c), limit, offset)
	if err != nil {
		respond.Internal(c, "failed to list reports", err)
		return
	}
	respond.OK(c, gin.H{"items": items, "limit": limit, "offset": offset})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

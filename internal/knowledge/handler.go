package knowledge

import (
	"strings"

	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/shared/server/respond"
)

const maxQueryRunes = 2000

// Handler exposes retrieval over HTTP.
type Handler struct {
	Retriever *Retriever
}

// NewHandler constructs a Handler.
func NewHandler(r *Retriever) *Handler {
	return &Handler{Retriever: r}
}

// RegisterRoutes attaches the query route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/knowledge/query", h.query)
}

type queryRequest struct {
	Query   string `json:"query"`
	Persist bool   `json:"persist"`
}

func (h *Handler) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Validation(c, "invalid request body")
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		respond.Validation(c, "query is required")
		return
	}
	if len([]rune(query)) > maxQueryRunes {
		respond.Validation(c, "query is too long")
		return
	}

	resp, err := h.Retriever.Retrieve(c.Request.Context(), query, Options{Persist: req.Persist})
	if err != nil {
		respond.Cancelled(c, "query was cancelled")
		return
	}
	if resp.Snippets == nil {
		resp.Snippets = []Snippet{}
	}
	respond.OK(c, resp)
}

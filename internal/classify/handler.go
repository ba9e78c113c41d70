package classify

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/shared/server/respond"
)

const maxClassifyBytes = 1 << 20

// Handler exposes the classifier over HTTP.
type Handler struct {
	Classifier *Classifier
}

// NewHandler constructs a Handler.
func NewHandler(c *Classifier) *Handler {
	return &Handler{Classifier: c}
}

// RegisterRoutes attaches the classify route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/classify", h.classify)
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label      Label    `json:"label"`
	Tier       Tier     `json:"tier"`
	Confidence *float64 `json:"confidence"`
}

func (h *Handler) classify(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxClassifyBytes)
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Validation(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respond.Validation(c, "text is required")
		return
	}

	res, err := h.Classifier.Classify(c.Request.Context(), req.Text)
	if err != nil {
		respond.Cancelled(c, "classification was cancelled")
		return
	}
	c.Set("label", string(res.Label))
	respond.OK(c, classifyResponse{Label: res.Label, Tier: res.Tier, Confidence: res.Confidence})
}

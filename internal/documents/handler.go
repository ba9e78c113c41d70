package documents

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/pipeline"
	"creditdocs-backend/internal/shared/server/middleware"
	"creditdocs-backend/internal/shared/server/respond"
)

const maxUploadSize = 25 << 20 // 25MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/analyze", h.analyze)
	rg.POST("/documents", h.submit)
}

func (h *Handler) analyze(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileName, data, ok := readUpload(c)
	if !ok {
		return
	}
	withKnowledge := formBool(c, "knowledge")

	out, err := h.Svc.Analyze(c.Request.Context(), ownerID, fileName, data, pipeline.Options{
		WithKnowledge:    withKnowledge,
		PersistKnowledge: withKnowledge,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Validation(c, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respond.Cancelled(c, "analysis was cancelled")
		default:
			respond.Internal(c, "failed to analyze document", err)
		}
		return
	}

	c.Set("reportId", out.Report.ID)
	c.Set("label", out.Report.Label)
	respond.OK(c, AnalyzeResponse{Report: out.Report, KnowledgeTier: out.Knowledge})
}

func (h *Handler) submit(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Validation(c, "file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Validation(c, "unable to read file")
		return
	}
	defer file.Close()

	rep, err := h.Svc.Submit(c.Request.Context(), ownerID, fileHeader.Filename, middleware.RequestIDFromContext(c), file, formBool(c, "knowledge"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Validation(c, err.Error())
		case errors.Is(err, ErrAsyncUnavailable):
			respond.Error(c, http.StatusServiceUnavailable, "async_unavailable", err.Error(), nil)
		default:
			respond.Internal(c, "failed to submit document", err)
		}
		return
	}

	c.Set("reportId", rep.ID)
	respond.Accepted(c, "/api/v1/reports/"+rep.ID, toSubmitResponse(rep))
}

func readUpload(c *gin.Context) (string, []byte, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Validation(c, "file is required")
		return "", nil, false
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Validation(c, "unable to read file")
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respond.Validation(c, "unable to read file")
		return "", nil, false
	}
	return fileHeader.Filename, data, true
}

func formBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.PostForm(key))
	return err == nil && v
}

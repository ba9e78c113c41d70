package reports

import (
	"errors"
	"time"

	"creditdocs-backend/internal/extract"
)

// Report status values.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("report not found")

// Report is the stored outcome of one pipeline run.
type Report struct {
	ID                 string                 `json:"id"`
	OwnerID            string                 `json:"ownerId"`
	DocumentKey        string                 `json:"documentKey,omitempty"`
	FileName           string                 `json:"fileName"`
	Status             string                 `json:"status"`
	Label              string                 `json:"label,omitempty"`
	ClassificationTier string                 `json:"classificationTier,omitempty"`
	Confidence         *float64               `json:"confidence,omitempty"`
	ExtractionTier     string                 `json:"extractionTier,omitempty"`
	NeedsOCR           bool                   `json:"needsOcr"`
	Record             map[string]any         `json:"record,omitempty"`
	Pages              []extract.PageArtifact `json:"pages,omitempty"`
	Error              *string                `json:"error,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	CompletedAt        *time.Time             `json:"completedAt,omitempty"`
}

// Terminal reports whether the report will not change again.
func (r Report) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

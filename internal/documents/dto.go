package documents

import (
	"time"

	"creditdocs-backend/internal/reports"
)

// SubmitResponse acknowledges a queued document.
type SubmitResponse struct {
	ReportID  string    `json:"reportId"`
	FileName  string    `json:"fileName"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// AnalyzeResponse is a finished report plus the knowledge tier used, if any.
type AnalyzeResponse struct {
	reports.Report
	KnowledgeTier string `json:"knowledgeTier,omitempty"`
}

func toSubmitResponse(rep reports.Report) SubmitResponse {
	return SubmitResponse{
		ReportID:  rep.ID,
		FileName:  rep.FileName,
		Status:    rep.Status,
		CreatedAt: rep.CreatedAt,
	}
}

package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"creditdocs-backend/internal/pipeline"
	"creditdocs-backend/internal/queue"
	"creditdocs-backend/internal/reports"
	"creditdocs-backend/internal/shared/metrics"
	"creditdocs-backend/internal/shared/storage/object"
	"creditdocs-backend/internal/shared/telemetry"
)

var (
	// ErrInvalidInput reports a request the service cannot act on.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAsyncUnavailable is returned when no object store or queue is configured.
	ErrAsyncUnavailable = errors.New("asynchronous processing unavailable")
)

// Runner runs the pipeline and stores its reports.
type Runner interface {
	Run(ctx context.Context, doc pipeline.Document, opts pipeline.Options) (pipeline.Result, error)
	SaveReport(ctx context.Context, base reports.Report, res pipeline.Result) reports.Report
}

// Service accepts uploaded documents.
type Service struct {
	Runner  Runner
	Store   object.ObjectStore
	Reports reports.Repo
	Queue   queue.Client
}

// Analysis is the synchronous outcome of one upload.
type Analysis struct {
	Report    reports.Report
	Knowledge string
}

// Analyze runs the pipeline in the request and stores the report.
func (s *Service) Analyze(ctx context.Context, ownerID, fileName string, data []byte, opts pipeline.Options) (Analysis, error) {
	if strings.TrimSpace(fileName) == "" || len(data) == 0 {
		return Analysis{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}

	res, err := s.Runner.Run(ctx, pipeline.Document{Bytes: data, FileName: fileName, OwnerID: ownerID}, opts)
	if err != nil {
		return Analysis{}, err
	}

	rep := s.Runner.SaveReport(ctx, reports.Report{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		FileName: fileName,
	}, res)

	out := Analysis{Report: rep}
	if res.Knowledge != nil {
		out.Knowledge = string(res.Knowledge.Tier)
	}
	return out, nil
}

// Submit stores the upload, records a queued report and enqueues the job.
func (s *Service) Submit(ctx context.Context, ownerID, fileName, requestID string, r io.Reader, withKnowledge bool) (reports.Report, error) {
	if strings.TrimSpace(fileName) == "" {
		return reports.Report{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if s.Store == nil || s.Queue == nil || s.Reports == nil {
		return reports.Report{}, ErrAsyncUnavailable
	}

	key, size, mimeType, err := s.Store.Save(ctx, ownerID, fileName, r)
	if err != nil {
		return reports.Report{}, fmt.Errorf("save document: %w", err)
	}

	rep := reports.Report{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		DocumentKey: key,
		FileName:    fileName,
		Status:      reports.StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Reports.Create(ctx, rep); err != nil {
		return reports.Report{}, fmt.Errorf("create report: %w", err)
	}

	msg := queue.Message{
		JobID:         rep.ID,
		DocumentKey:   key,
		FileName:      fileName,
		OwnerID:       ownerID,
		WithKnowledge: withKnowledge,
		RequestID:     requestID,
		EnqueuedAt:    rep.CreatedAt.Format(time.RFC3339),
		Version:       queue.MessageVersion,
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		if failErr := s.Reports.Fail(ctx, rep.ID, "enqueue failed"); failErr != nil {
			metrics.IncPersistenceFailure("reports")
		}
		return reports.Report{}, fmt.Errorf("enqueue job: %w", err)
	}

	telemetry.Info("documents.submitted", map[string]any{
		"report_id":  rep.ID,
		"owner_id":   ownerID,
		"store":      s.Store.Name(),
		"size_bytes": size,
		"mime_type":  mimeType,
		"request_id": requestID,
	})
	return rep, nil
}

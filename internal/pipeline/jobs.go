package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creditdocs-backend/internal/queue"
	"creditdocs-backend/internal/reports"
	"creditdocs-backend/internal/shared/metrics"
	"creditdocs-backend/internal/shared/storage/object"
	"creditdocs-backend/internal/shared/telemetry"
)

var (
	// ErrUnrecoverable marks a job that will never succeed on redelivery.
	ErrUnrecoverable = errors.New("unrecoverable job")
	// ErrNoLocations is returned when queued jobs arrive without any object store.
	ErrNoLocations = errors.New("no object locations configured")
)

// ProcessJob fetches the queued document, runs the pipeline and stores the
// report. Errors wrapping ErrUnrecoverable should not be retried; any other
// error leaves the job for redelivery.
func (s *Service) ProcessJob(ctx context.Context, msg queue.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
	}
	if s.locations == nil {
		return ErrNoLocations
	}

	fields := map[string]any{
		"job_id":       msg.JobID,
		"document_key": msg.DocumentKey,
		"request_id":   msg.RequestID,
	}
	s.markProcessing(ctx, msg)

	data, location, err := s.locations.Fetch(ctx, msg.DocumentKey)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if object.Permanent(err) {
			s.failReport(ctx, msg.JobID, "document not found")
			return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
		}
		return fmt.Errorf("fetch document: %w", err)
	}
	fields["location"] = location
	telemetry.Info("pipeline.job.fetched", fields)

	res, err := s.Run(ctx, Document{Bytes: data, FileName: msg.FileName, OwnerID: msg.OwnerID}, Options{
		WithKnowledge:    msg.WithKnowledge,
		PersistKnowledge: msg.WithKnowledge,
	})
	if err != nil {
		return err
	}

	s.SaveReport(ctx, reports.Report{
		ID:          msg.JobID,
		OwnerID:     msg.OwnerID,
		DocumentKey: msg.DocumentKey,
		FileName:    msg.FileName,
	}, res)
	return nil
}

// SaveReport fills base with the run's outcome and stores it. Storage
// failures are logged and counted; the filled report is returned either way.
func (s *Service) SaveReport(ctx context.Context, base reports.Report, res Result) reports.Report {
	rep := ReportFromResult(base, res)
	if s.reports == nil {
		return rep
	}

	err := s.reports.Complete(ctx, rep)
	if errors.Is(err, reports.ErrNotFound) {
		if err = s.reports.Create(ctx, reports.Report{
			ID:          rep.ID,
			OwnerID:     rep.OwnerID,
			DocumentKey: rep.DocumentKey,
			FileName:    rep.FileName,
			Status:      reports.StatusProcessing,
			CreatedAt:   rep.CreatedAt,
		}); err == nil {
			err = s.reports.Complete(ctx, rep)
		}
	}
	if err != nil {
		metrics.IncPersistenceFailure("reports")
		telemetry.Error("pipeline.report_persist_failed", map[string]any{
			"report_id": rep.ID,
			"error":     err.Error(),
		})
	}
	return rep
}

// ReportFromResult copies the run's outcome onto base.
func ReportFromResult(base reports.Report, res Result) reports.Report {
	rep := base
	now := time.Now().UTC()
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = now
	}
	rep.Status = reports.StatusCompleted
	rep.Label = string(res.Classification.Label)
	rep.ClassificationTier = string(res.Classification.Tier)
	rep.Confidence = res.Classification.Confidence
	rep.ExtractionTier = string(res.Extraction.Tier)
	rep.NeedsOCR = res.Extraction.NeedsOCR
	rep.Record = map[string]any(res.Record)
	rep.Pages = res.Extraction.Pages
	rep.CompletedAt = &now
	return rep
}

func (s *Service) markProcessing(ctx context.Context, msg queue.Message) {
	if s.reports == nil {
		return
	}
	err := s.reports.UpdateStatus(ctx, msg.JobID, reports.StatusProcessing)
	if errors.Is(err, reports.ErrNotFound) {
		err = s.reports.Create(ctx, reports.Report{
			ID:          msg.JobID,
			OwnerID:     msg.OwnerID,
			DocumentKey: msg.DocumentKey,
			FileName:    msg.FileName,
			Status:      reports.StatusProcessing,
		})
	}
	if err != nil {
		metrics.IncPersistenceFailure("reports")
		telemetry.Warn("pipeline.report_status_failed", map[string]any{"report_id": msg.JobID, "error": err.Error()})
	}
}

func (s *Service) failReport(ctx context.Context, id, reason string) {
	if s.reports == nil {
		return
	}
	if err := s.reports.Fail(ctx, id, reason); err != nil {
		metrics.IncPersistenceFailure("reports")
		telemetry.Warn("pipeline.report_status_failed", map[string]any{"report_id": id, "error": err.Error()})
	}
}

package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"creditdocs-backend/internal/extract"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `
SELECT id, owner_id, document_key, file_name, status, label, classification_tier, confidence,
       extraction_tier, needs_ocr, record, pages, error, created_at, completed_at
FROM reports`

// Create inserts a new report.
func (r *PGRepo) Create(ctx context.Context, report Report) error {
	const query = `
INSERT INTO reports (id, owner_id, document_key, file_name, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	createdAt := report.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, query,
		report.ID,
		report.OwnerID,
		nullString(report.DocumentKey),
		report.FileName,
		report.Status,
		createdAt,
	)
	return err
}

// GetByID returns a report by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Report, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE id = $1
LIMIT 1`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	return report, err
}

// ListByOwner returns the owner's reports, newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, selectColumns+`
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

// UpdateStatus sets the status of an existing report.
func (r *PGRepo) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE reports SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Complete stores the result fields and marks the report completed.
func (r *PGRepo) Complete(ctx context.Context, report Report) error {
	const query = `
UPDATE reports
SET status = $2, label = $3, classification_tier = $4, confidence = $5, extraction_tier = $6,
    needs_ocr = $7, record = $8, pages = $9, error = NULL, completed_at = $10
WHERE id = $1`
	record, err := marshalJSONB(report.Record)
	if err != nil {
		return err
	}
	pages, err := marshalJSONB(report.Pages)
	if err != nil {
		return err
	}
	var confidence any
	if report.Confidence != nil {
		confidence = *report.Confidence
	}
	res, err := r.DB.ExecContext(ctx, query,
		report.ID,
		StatusCompleted,
		nullString(report.Label),
		nullString(report.ClassificationTier),
		confidence,
		nullString(report.ExtractionTier),
		report.NeedsOCR,
		record,
		pages,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Fail marks the report failed with message.
func (r *PGRepo) Fail(ctx context.Context, id, message string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE reports SET status = $2, error = $3, completed_at = $4 WHERE id = $1`,
		id, StatusFailed, message, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (Report, error) {
	var rep Report
	var documentKey, label, classificationTier, extractionTier, errMsg sql.NullString
	var record, pages sql.NullString
	var confidence sql.NullFloat64
	var completedAt sql.NullTime
	if err := row.Scan(
		&rep.ID,
		&rep.OwnerID,
		&documentKey,
		&rep.FileName,
		&rep.Status,
		&label,
		&classificationTier,
		&confidence,
		&extractionTier,
		&rep.NeedsOCR,
		&record,
		&pages,
		&errMsg,
		&rep.CreatedAt,
		&completedAt,
	); err != nil {
		return Report{}, err
	}
	rep.DocumentKey = documentKey.String
	rep.Label = label.String
	rep.ClassificationTier = classificationTier.String
	rep.ExtractionTier = extractionTier.String
	if confidence.Valid {
		c := confidence.Float64
		rep.Confidence = &c
	}
	if errMsg.Valid {
		msg := errMsg.String
		rep.Error = &msg
	}
	if completedAt.Valid {
		t := completedAt.Time
		rep.CompletedAt = &t
	}
	if record.Valid && record.String != "" {
		if err := json.Unmarshal([]byte(record.String), &rep.Record); err != nil {
			return Report{}, err
		}
	}
	if pages.Valid && pages.String != "" {
		var parsed []extract.PageArtifact
		if err := json.Unmarshal([]byte(pages.String), &parsed); err != nil {
			return Report{}, err
		}
		rep.Pages = parsed
	}
	return rep, nil
}

func marshalJSONB[T any](value T) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)

package reports

import "context"

// Repo persists reports.
type Repo interface {
	Create(ctx context.Context, report Report) error
	GetByID(ctx context.Context, id string) (Report, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Report, error)
	UpdateStatus(ctx context.Context, id, status string) error
	// Complete stores the result fields of a finished run and marks it completed.
	Complete(ctx context.Context, report Report) error
	Fail(ctx context.Context, id, message string) error
}

package reports

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores reports in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Report
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Report)}
}

// Create stores the report.
func (r *MemoryRepo) Create(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[report.ID] = report
	return nil
}

// GetByID returns a report by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.byID[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	return report, nil
}

// ListByOwner returns the owner's reports, newest first.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []Report
	for _, rep := range r.byID {
		if rep.OwnerID == ownerID {
			out = append(out, rep)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset > 0 {
		if offset >= len(out) {
			return []Report{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus sets the status of an existing report.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return r.update(ctx, id, func(rep *Report) {
		rep.Status = status
	})
}

// Complete copies the result fields onto the stored report.
func (r *MemoryRepo) Complete(ctx context.Context, report Report) error {
	return r.update(ctx, report.ID, func(rep *Report) {
		now := time.Now().UTC()
		rep.Status = StatusCompleted
		rep.Label = report.Label
		rep.ClassificationTier = report.ClassificationTier
		rep.Confidence = report.Confidence
		rep.ExtractionTier = report.ExtractionTier
		rep.NeedsOCR = report.NeedsOCR
		rep.Record = report.Record
		rep.Pages = report.Pages
		rep.Error = nil
		rep.CompletedAt = &now
	})
}

// Fail marks the report failed with message.
func (r *MemoryRepo) Fail(ctx context.Context, id, message string) error {
	return r.update(ctx, id, func(rep *Report) {
		now := time.Now().UTC()
		rep.Status = StatusFailed
		rep.Error = &message
		rep.CompletedAt = &now
	})
}

func (r *MemoryRepo) update(ctx context.Context, id string, fn func(*Report)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&rep)
	r.byID[id] = rep
	return nil
}

var _ Repo = (*MemoryRepo)(nil)

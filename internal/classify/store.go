package classify

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Exemplar is a labeled document used by the neighbor tier.
type Exemplar struct {
	ID        string
	Label     Label
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// ExemplarStore samples and records exemplars.
type ExemplarStore interface {
	Sample(ctx context.Context, limit int) ([]Exemplar, error)
	Add(ctx context.Context, ex Exemplar) error
}

// MemoryStore keeps exemplars in memory and is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Exemplar
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(seed ...Exemplar) *MemoryStore {
	return &MemoryStore{items: append([]Exemplar(nil), seed...)}
}

// Sample returns up to limit exemplars in random order.
func (s *MemoryStore) Sample(ctx context.Context, limit int) ([]Exemplar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := append([]Exemplar(nil), s.items...)
	s.mu.RUnlock()
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Add stores ex, assigning an ID and timestamp when missing.
func (s *MemoryStore) Add(ctx context.Context, ex Exemplar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ex = withDefaults(ex)
	s.mu.Lock()
	s.items = append(s.items, ex)
	s.mu.Unlock()
	return nil
}

func withDefaults(ex Exemplar) Exemplar {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	return ex
}

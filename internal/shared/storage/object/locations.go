package object

import (
	"context"
	"errors"
	"fmt"
	"io"

	"creditdocs-backend/internal/fallback"
	"creditdocs-backend/internal/shared/telemetry"
)

// DefaultMaxBytes caps a single fetched document.
const DefaultMaxBytes = 50 << 20

// ErrTooLarge is returned when an object exceeds the fetch limit.
var ErrTooLarge = errors.New("object exceeds size limit")

// Locations reads a key from an ordered list of stores; the first store that
// has it wins.
type Locations struct {
	stores   []ObjectStore
	maxBytes int64
}

// NewLocations builds Locations over stores in priority order. Nil stores
// are ignored.
func NewLocations(stores ...ObjectStore) *Locations {
	l := &Locations{maxBytes: DefaultMaxBytes}
	for _, s := range stores {
		if s != nil {
			l.stores = append(l.stores, s)
		}
	}
	return l
}

// WithMaxBytes sets the per-object size limit.
func (l *Locations) WithMaxBytes(n int64) *Locations {
	if n > 0 {
		l.maxBytes = n
	}
	return l
}

// Primary is the store new uploads go to.
func (l *Locations) Primary() ObjectStore {
	if len(l.stores) == 0 {
		return nil
	}
	return l.stores[0]
}

// Names lists the configured locations in order.
func (l *Locations) Names() []string {
	out := make([]string, 0, len(l.stores))
	for _, s := range l.stores {
		out = append(out, s.Name())
	}
	return out
}

// Fetch returns the object bytes and the name of the location that served
// them.
func (l *Locations) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	tiers := make([]fallback.Tier[[]byte], 0, len(l.stores))
	for _, s := range l.stores {
		tiers = append(tiers, fallback.Tier[[]byte]{Name: s.Name(), Run: func(ctx context.Context) ([]byte, error) {
			return l.read(ctx, s, key)
		}})
	}
	outcome, err := fallback.First(ctx, tiers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		telemetry.Warn("object.fetch_failed", map[string]any{"key": key, "error": err.Error()})
		return nil, "", fmt.Errorf("fetch %s: %w", key, err)
	}
	if len(outcome.Attempts) > 1 {
		telemetry.Info("object.fetch_fallback", map[string]any{"key": key, "location": outcome.Tier, "attempts": len(outcome.Attempts)})
	}
	return outcome.Value, outcome.Tier, nil
}

func (l *Locations) read(ctx context.Context, s ObjectStore, key string) ([]byte, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Permanent reports whether a Fetch error will not clear up on retry: every
// location either lacks the key or holds an oversized object.
func Permanent(err error) bool {
	var exhausted *fallback.ExhaustedError
	if !errors.As(err, &exhausted) {
		return errors.Is(err, ErrNotFound) || errors.Is(err, ErrTooLarge)
	}
	for _, a := range exhausted.Attempts {
		if !errors.Is(a.Err, ErrNotFound) && !errors.Is(a.Err, ErrTooLarge) {
			return false
		}
	}
	return true
}

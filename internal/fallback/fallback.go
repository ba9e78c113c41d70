// Package fallback runs ordered tiers sequentially and returns the first success.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrExhausted matches any *ExhaustedError via errors.Is.
	ErrExhausted = errors.New("all tiers exhausted")
	// ErrInsufficient marks a tier that ran but produced an unusable result.
	ErrInsufficient = errors.New("tier result insufficient")
)

// Tier is one stage of an ordered fallback sequence.
type Tier[T any] struct {
	Name string
	// Timeout bounds this tier only. Zero means the caller's context alone applies.
	Timeout time.Duration
	Run     func(ctx context.Context) (T, error)
}

// Attempt records the outcome of one tier.
type Attempt struct {
	Tier     string
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the tier produced the returned value.
func (a Attempt) Succeeded() bool { return a.Err == nil }

// Outcome is the winning tier's value plus the attempts that led to it.
type Outcome[T any] struct {
	Value    T
	Tier     string
	Attempts []Attempt
}

// ExhaustedError is returned when every tier failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all tiers exhausted: no tiers configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Tier, a.Err))
	}
	return "all tiers exhausted: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrExhausted) match.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Unwrap exposes every tier error.
func (e *ExhaustedError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			out = append(out, a.Err)
		}
	}
	return out
}

// Option customizes a First call.
type Option func(*options)

type options struct {
	observe func(Attempt)
	now     func() time.Time
}

// WithObserver registers a callback invoked after each tier, in order.
func WithObserver(fn func(Attempt)) Option {
	return func(o *options) { o.observe = fn }
}

// First evaluates tiers in order and returns the first one that succeeds.
// A cancelled ctx stops evaluation before the next tier and returns ctx.Err()
// together with the attempts made so far.
func First[T any](ctx context.Context, tiers []Tier[T], opts ...Option) (Outcome[T], error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var out Outcome[T]
	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if tier.Run == nil {
			continue
		}

		value, elapsed, err := runTier(ctx, tier, o.now)
		attempt := Attempt{Tier: tier.Name, Err: err, Duration: elapsed}
		out.Attempts = append(out.Attempts, attempt)
		if o.observe != nil {
			o.observe(attempt)
		}
		if err == nil {
			out.Value = value
			out.Tier = tier.Name
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
	}
	return out, &ExhaustedError{Attempts: out.Attempts}
}

func runTier[T any](ctx context.Context, tier Tier[T], now func() time.Time) (T, time.Duration, error) {
	tierCtx := ctx
	if tier.Timeout > 0 {
		var cancel context.CancelFunc
		tierCtx, cancel = context.WithTimeout(ctx, tier.Timeout)
		defer cancel()
	}
	start := now()
	value, err := tier.Run(tierCtx)
	return value, now().Sub(start), err
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"creditdocs-backend/internal/fallback"
	"creditdocs-backend/internal/shared/metrics"
	"creditdocs-backend/internal/shared/telemetry"
)

// Completer is the gateway surface used by other components.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Completion is the winning provider's content plus the attempt log.
type Completion struct {
	Content  string
	Provider ProviderID
	Model    string
	Attempts []ProviderCallResult
}

// Label returns "provider:model" for provenance.
func (c Completion) Label() string {
	return c.Provider.String() + ":" + c.Model
}

// Gateway tries each provider once, in priority order, and returns the first
// non-empty response.
type Gateway struct {
	providers []gatewayProvider
	timeout   time.Duration
	observe   func(ProviderCallResult)
}

type gatewayProvider struct {
	Provider
	limiter *rate.Limiter
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout bounds each provider attempt.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithRateLimit gives every provider its own request budget. When a provider
// has no token available the attempt fails as quota and the gateway moves on.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Gateway) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		for i := range g.providers {
			g.providers[i].limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithAttemptObserver is called once per provider attempt.
func WithAttemptObserver(fn func(ProviderCallResult)) Option {
	return func(g *Gateway) { g.observe = fn }
}

// NewGateway builds a gateway over providers in priority order.
func NewGateway(providers []Provider, opts ...Option) *Gateway {
	g := &Gateway{}
	for _, p := range providers {
		if p == nil {
			continue
		}
		g.providers = append(g.providers, gatewayProvider{Provider: p})
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Providers returns the configured provider ids in order.
func (g *Gateway) Providers() []ProviderID {
	out := make([]ProviderID, 0, len(g.providers))
	for _, p := range g.providers {
		out = append(out, p.ID())
	}
	return out
}

// Complete returns the first provider's content. Each provider is called at
// most once. When every provider fails the error is *ProviderExhaustedError.
func (g *Gateway) Complete(ctx context.Context, req Request) (Completion, error) {
	if len(req.Messages) == 0 {
		return Completion{}, &ProviderError{Kind: KindConfig, Err: errors.New("no messages")}
	}

	tiers := make([]fallback.Tier[Response], 0, len(g.providers))
	for _, p := range g.providers {
		p := p
		tiers = append(tiers, fallback.Tier[Response]{
			Name:    p.ID().String(),
			Timeout: g.timeout,
			Run: func(tierCtx context.Context) (Response, error) {
				return g.call(ctx, tierCtx, p, req)
			},
		})
	}

	attempts := make([]ProviderCallResult, 0, len(tiers))
	outcome, err := fallback.First(ctx, tiers, fallback.WithObserver(func(a fallback.Attempt) {
		attempts = append(attempts, g.record(g.providers[len(attempts)], a))
	}))
	if err == nil {
		winner := g.providers[len(outcome.Attempts)-1]
		return Completion{
			Content:  outcome.Value.Content,
			Provider: winner.ID(),
			Model:    winner.Model(),
			Attempts: attempts,
		}, nil
	}
	if errors.Is(err, fallback.ErrExhausted) {
		var exhausted *fallback.ExhaustedError
		errors.As(err, &exhausted)
		return Completion{Attempts: attempts}, &ProviderExhaustedError{Attempts: attempts, errs: exhausted.Unwrap()}
	}
	return Completion{Attempts: attempts}, err
}

func (g *Gateway) call(parent, ctx context.Context, p gatewayProvider, req Request) (Response, error) {
	if p.limiter != nil && !p.limiter.Allow() {
		return Response{}, &ProviderError{Kind: KindQuota, Err: errors.New("local request budget exhausted")}
	}
	resp, err := p.Complete(ctx, req)
	if err != nil {
		if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
		}
		return Response{}, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Response{}, &ProviderError{Kind: KindEmpty, Err: errors.New("empty content")}
	}
	return resp, nil
}

func (g *Gateway) record(p gatewayProvider, a fallback.Attempt) ProviderCallResult {
	res := ProviderCallResult{
		Provider:  p.ID(),
		Model:     p.Model(),
		Succeeded: a.Succeeded(),
		Latency:   a.Duration,
		ErrorKind: ClassifyError(a.Err),
	}
	fields := map[string]any{
		"provider":   res.Provider.String(),
		"model":      res.Model,
		"succeeded":  res.Succeeded,
		"latency_ms": res.Latency.Milliseconds(),
	}
	if res.Succeeded {
		telemetry.Info("gateway.attempt", fields)
	} else {
		fields["error_kind"] = string(res.ErrorKind)
		fields["error"] = a.Err.Error()
		telemetry.Warn("gateway.attempt", fields)
	}
	metrics.IncProviderAttempt(res.Provider.String(), res.Succeeded)
	if g.observe != nil {
		g.observe(res)
	}
	return res
}

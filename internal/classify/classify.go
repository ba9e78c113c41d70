// Package classify assigns one document type label to extracted text.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"creditdocs-backend/internal/embedding"
	"creditdocs-backend/internal/extract"
	"creditdocs-backend/internal/fallback"
	"creditdocs-backend/internal/llm"
	"creditdocs-backend/internal/shared/config"
	"creditdocs-backend/internal/shared/metrics"
	"creditdocs-backend/internal/shared/telemetry"
)

// ErrClassificationAmbiguous is recorded when no tier was decisive.
var ErrClassificationAmbiguous = errors.New("classification ambiguous")

// Label is a document type.
type Label string

const (
	LabelCreditReport  Label = "credit-report"
	LabelDebtLetter    Label = "debt-letter"
	LabelCFPBComplaint Label = "cfpb-complaint"
	LabelOther         Label = "other"
	LabelUnknown       Label = "unknown"
)

// Labels is the closed set a classifier tier may return, in parse order.
var Labels = []Label{LabelCreditReport, LabelDebtLetter, LabelCFPBComplaint, LabelOther}

// ParseLabel accepts a label in any case, with spaces or underscores.
func ParseLabel(raw string) (Label, bool) {
	norm := normalizeToken(raw)
	for _, l := range Labels {
		if norm == string(l) {
			return l, true
		}
	}
	if norm == string(LabelUnknown) {
		return LabelUnknown, true
	}
	return "", false
}

func normalizeToken(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", "-")
	return strings.ReplaceAll(s, " ", "-")
}

// Tier names the stage that produced the label.
type Tier string

const (
	TierHeuristic Tier = "heuristic"
	TierNeighbor  Tier = "neighbor"
	TierInference Tier = "inference"
	TierNone      Tier = "none"
)

// Result is one classification.
type Result struct {
	Label      Label    `json:"label"`
	Tier       Tier     `json:"tier"`
	Confidence *float64 `json:"confidence,omitempty"`
	// Failure wraps ErrClassificationAmbiguous when every tier failed.
	Failure  error              `json:"-"`
	Attempts []fallback.Attempt `json:"-"`
}

// Config tunes the neighbor tier.
type Config struct {
	K          int
	Threshold  float64
	SampleSize int
	Rules      []config.LabelRule
	// MaxPromptRunes caps the text sent to the embedding and inference tiers.
	MaxPromptRunes int
	// Timeout bounds the neighbor tier and InferenceTimeout the inference
	// tier. A tier that runs out of time fails over to the next one.
	Timeout          time.Duration
	InferenceTimeout time.Duration
}

// DefaultConfig matches the production defaults.
func DefaultConfig() Config {
	return Config{
		K:                5,
		Threshold:        0.7,
		SampleSize:       500,
		Rules:            config.MustDefaultVocabulary().Classifier,
		MaxPromptRunes:   4000,
		Timeout:          10 * time.Second,
		InferenceTimeout: 3 * time.Minute,
	}
}

// Classifier runs heuristic, nearest-neighbor and inference tiers in order.
// Embedder, store and gateway may be nil, which disables their tier.
type Classifier struct {
	cfg      Config
	embedder embedding.Embedder
	store    ExemplarStore
	gateway  llm.Completer
}

// New builds a Classifier.
func New(cfg Config, embedder embedding.Embedder, store ExemplarStore, gateway llm.Completer) *Classifier {
	def := DefaultConfig()
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.SampleSize <= 0 || cfg.SampleSize > def.SampleSize {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.Rules == nil {
		cfg.Rules = def.Rules
	}
	if cfg.MaxPromptRunes <= 0 {
		cfg.MaxPromptRunes = def.MaxPromptRunes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = def.InferenceTimeout
	}
	return &Classifier{cfg: cfg, embedder: embedder, store: store, gateway: gateway}
}

// Classify never fails except on ctx cancellation. Empty or placeholder text
// is labeled unknown without running any tier.
func (c *Classifier) Classify(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Label: LabelUnknown, Tier: TierNone}, err
	}
	if strings.TrimSpace(text) == "" || extract.IsPlaceholder(text) {
		metrics.IncClassificationTier(string(TierNone))
		return Result{Label: LabelUnknown, Tier: TierNone}, nil
	}

	tiers := []fallback.Tier[Result]{
		{Name: string(TierHeuristic), Run: func(ctx context.Context) (Result, error) {
			return c.heuristic(text)
		}},
		{Name: string(TierNeighbor), Timeout: c.cfg.Timeout},
		{Name: string(TierInference), Timeout: c.cfg.InferenceTimeout},
	}
	if c.embedder != nil && c.store != nil {
		tiers[1].Run = func(ctx context.Context) (Result, error) { return c.neighbor(ctx, text) }
	}
	if c.gateway != nil {
		tiers[2].Run = func(ctx context.Context) (Result, error) { return c.inference(ctx, text) }
	}

	outcome, err := fallback.First(ctx, tiers, fallback.WithObserver(func(a fallback.Attempt) {
		fields := map[string]any{"tier": a.Tier, "succeeded": a.Succeeded(), "duration_ms": a.Duration.Milliseconds()}
		if a.Err != nil {
			fields["error"] = a.Err.Error()
		}
		telemetry.Debug("classify.tier", fields)
	}))
	if err == nil {
		res := outcome.Value
		res.Attempts = outcome.Attempts
		metrics.IncClassificationTier(string(res.Tier))
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Label: LabelUnknown, Tier: TierNone, Attempts: outcome.Attempts}, ctxErr
	}

	metrics.IncClassificationTier(string(TierNone))
	telemetry.Warn("classify.ambiguous", map[string]any{"error": err.Error()})
	return Result{
		Label:    LabelOther,
		Tier:     TierNone,
		Failure:  fmt.Errorf("%w: %w", ErrClassificationAmbiguous, err),
		Attempts: outcome.Attempts,
	}, nil
}

// heuristic matches fixed vocabularies. A rule matches when each of its term
// groups has a hit; the rule with the most distinct hits wins and ties go to
// the earlier rule.
func (c *Classifier) heuristic(text string) (Result, error) {
	lower := strings.ToLower(text)
	best := -1
	bestHits := 0
	for i, rule := range c.cfg.Rules {
		hits, ok := ruleHits(lower, rule)
		if ok && hits > bestHits {
			best, bestHits = i, hits
		}
	}
	if best < 0 {
		return Result{}, fmt.Errorf("%w: no vocabulary match", fallback.ErrInsufficient)
	}
	label, ok := ParseLabel(c.cfg.Rules[best].Label)
	if !ok {
		return Result{}, fmt.Errorf("%w: rule label %q is not a known label", fallback.ErrInsufficient, c.cfg.Rules[best].Label)
	}
	return Result{Label: label, Tier: TierHeuristic}, nil
}

func ruleHits(lower string, rule config.LabelRule) (int, bool) {
	if len(rule.Groups) == 0 {
		return 0, false
	}
	seen := map[string]bool{}
	for _, group := range rule.Groups {
		groupHit := false
		for _, term := range group {
			if term != "" && strings.Contains(lower, term) {
				groupHit = true
				seen[term] = true
			}
		}
		if !groupHit {
			return 0, false
		}
	}
	return len(seen), true
}

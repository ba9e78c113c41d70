package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"creditdocs-backend/internal/embedding"
	"creditdocs-backend/internal/fallback"
	"creditdocs-backend/internal/knowledge/websearch"
	"creditdocs-backend/internal/shared/config"
	"creditdocs-backend/internal/shared/metrics"
	"creditdocs-backend/internal/shared/similarity"
	"creditdocs-backend/internal/shared/telemetry"
)

// Tier names the retrieval stage that answered.
type Tier string

const (
	TierVector  Tier = "vector"
	TierSample  Tier = "sample"
	TierLexical Tier = "lexical"
	TierWeb     Tier = "web"
	TierNone    Tier = "none"
)

// WebSearcher is the last-resort source.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]websearch.Result, error)
}

// Config tunes retrieval.
type Config struct {
	Keywords    []string
	MaxKeywords int
	TopK        int
	SampleSize  int
	// Timeout bounds each tier attempt.
	Timeout time.Duration
}

// DefaultConfig matches the production defaults.
func DefaultConfig() Config {
	return Config{
		Keywords:    config.MustDefaultVocabulary().Keywords,
		MaxKeywords: 3,
		TopK:        5,
		SampleSize:  200,
		Timeout:     15 * time.Second,
	}
}

// Options tunes one Retrieve call.
type Options struct {
	// Persist stores web results in every collection, best effort.
	Persist bool
}

// Response is the answer to one query.
type Response struct {
	Snippets   []Snippet          `json:"snippets"`
	Text       string             `json:"text"`
	Tier       Tier               `json:"tier"`
	Term       string             `json:"term,omitempty"`
	Collection string             `json:"collection,omitempty"`
	Attempts   []fallback.Attempt `json:"-"`
}

// Retriever runs the knowledge fallback chain. Collections are tried in
// order, so the specialized collection should come first.
type Retriever struct {
	cfg         Config
	embedder    embedding.Embedder
	collections []Collection
	web         WebSearcher
}

// NewRetriever builds a Retriever. embedder and web may be nil.
func NewRetriever(cfg Config, embedder embedding.Embedder, collections []Collection, web WebSearcher) *Retriever {
	def := DefaultConfig()
	if cfg.Keywords == nil {
		cfg.Keywords = def.Keywords
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = def.MaxKeywords
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.SampleSize <= 0 || cfg.SampleSize > def.SampleSize {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Retriever{cfg: cfg, embedder: embedder, collections: collections, web: web}
}

// Retrieve walks every term and collection through the vector, sample and
// lexical tiers, then the web. The first non-empty answer wins. Retrieval
// failures never surface as errors; only ctx cancellation does. An empty
// Response with TierNone means nothing was found anywhere.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{Tier: TierNone}, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{Tier: TierNone}, nil
	}

	terms := Keywords(query, r.cfg.Keywords, r.cfg.MaxKeywords)
	vectors := map[string][]float32{}
	var tiers []fallback.Tier[Response]
	for _, term := range terms {
		for _, coll := range r.collections {
			name := func(t Tier) string { return fmt.Sprintf("%s/%s/%s", t, coll.Name(), term) }
			group := []fallback.Tier[Response]{
				{Name: name(TierVector), Timeout: r.cfg.Timeout},
				{Name: name(TierSample), Timeout: r.cfg.Timeout},
				{Name: name(TierLexical), Timeout: r.cfg.Timeout, Run: func(ctx context.Context) (Response, error) {
					snippets, err := coll.LexicalSearch(ctx, term, r.cfg.TopK)
					return r.answer(snippets, err, TierLexical, term, coll.Name())
				}},
			}
			if r.embedder != nil {
				group[0].Run = func(ctx context.Context) (Response, error) {
					q, err := r.termVector(ctx, vectors, term)
					if err != nil {
						return Response{}, err
					}
					snippets, err := coll.VectorSearch(ctx, q, r.cfg.TopK)
					return r.answer(snippets, err, TierVector, term, coll.Name())
				}
				group[1].Run = func(ctx context.Context) (Response, error) {
					q, err := r.termVector(ctx, vectors, term)
					if err != nil {
						return Response{}, err
					}
					snippets, err := r.sampleSearch(ctx, coll, q)
					return r.answer(snippets, err, TierSample, term, coll.Name())
				}
			}
			tiers = append(tiers, group...)
		}
	}
	webTier := fallback.Tier[Response]{Name: string(TierWeb), Timeout: r.cfg.Timeout}
	if r.web != nil {
		webTier.Run = func(ctx context.Context) (Response, error) {
			results, err := r.web.Search(ctx, query, r.cfg.TopK)
			if err != nil {
				return Response{}, err
			}
			return r.answer(webSnippets(results), nil, TierWeb, query, "")
		}
	}
	tiers = append(tiers, webTier)

	outcome, err := fallback.First(ctx, tiers, fallback.WithObserver(func(a fallback.Attempt) {
		fields := map[string]any{"tier": a.Tier, "succeeded": a.Succeeded(), "duration_ms": a.Duration.Milliseconds()}
		if a.Err != nil {
			fields["error"] = a.Err.Error()
		}
		telemetry.Debug("knowledge.tier", fields)
	}))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{Tier: TierNone, Attempts: outcome.Attempts}, ctxErr
		}
		metrics.IncKnowledgeTier(string(TierNone))
		telemetry.Warn("knowledge.exhausted", map[string]any{"query": query, "error": err.Error()})
		return Response{Tier: TierNone, Attempts: outcome.Attempts}, nil
	}

	res := outcome.Value
	res.Attempts = outcome.Attempts
	metrics.IncKnowledgeTier(string(res.Tier))
	if opts.Persist && res.Tier == TierWeb {
		r.persist(ctx, query, res.Snippets)
	}
	return res, nil
}

func (r *Retriever) termVector(ctx context.Context, cache map[string][]float32, term string) ([]float32, error) {
	if v, ok := cache[term]; ok {
		return v, nil
	}
	v, err := r.embedder.Embed(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("embed term: %w", err)
	}
	cache[term] = v
	return v, nil
}

// sampleSearch ranks a bounded sample by cosine similarity, embedding any
// chunk that was stored without a vector.
func (r *Retriever) sampleSearch(ctx context.Context, coll Collection, query []float32) ([]Snippet, error) {
	chunks, err := coll.Sample(ctx, r.cfg.SampleSize)
	if err != nil {
		return nil, err
	}
	var scored []similarity.Scored
	for i, c := range chunks {
		vec := c.Embedding
		if len(vec) == 0 {
			if vec, err = r.embedder.Embed(ctx, c.Text); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
		}
		if score, ok := similarity.Cosine(query, vec); ok {
			scored = append(scored, similarity.Scored{Index: i, Score: score})
		}
	}
	top := similarity.TopK(scored, r.cfg.TopK)
	out := make([]Snippet, 0, len(top))
	for _, s := range top {
		out = append(out, snippetFromChunk(chunks[s.Index], s.Score))
	}
	return out, nil
}

func (r *Retriever) answer(snippets []Snippet, err error, tier Tier, term, collection string) (Response, error) {
	if err != nil {
		return Response{}, err
	}
	if len(snippets) == 0 {
		return Response{}, fmt.Errorf("%w: no results", fallback.ErrInsufficient)
	}
	if len(snippets) > r.cfg.TopK {
		snippets = snippets[:r.cfg.TopK]
	}
	return Response{
		Snippets:   snippets,
		Text:       FormatText(snippets),
		Tier:       tier,
		Term:       term,
		Collection: collection,
	}, nil
}

func webSnippets(results []websearch.Result) []Snippet {
	out := make([]Snippet, 0, len(results))
	for _, res := range results {
		text := strings.TrimSpace(res.Snippet)
		if text == "" {
			text = res.Title
		}
		out = append(out, Snippet{ID: uuid.NewString(), Title: res.Title, Text: text, Source: "web:" + res.URL})
	}
	return out
}

// FormatText renders snippets as one text block.
func FormatText(snippets []Snippet) string {
	var b strings.Builder
	for i, s := range snippets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, s.Title)
		if s.Source != "" {
			fmt.Fprintf(&b, "Source: %s\n", s.Source)
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// persist writes web snippets to every collection under the snippet IDs
// already returned to the caller. A collection that rejects vectors gets one
// retry without them. Embedding and each collection's write are bounded by
// the tier timeout. Failures are logged and counted only.
func (r *Retriever) persist(ctx context.Context, query string, snippets []Snippet) {
	now := time.Now().UTC()
	chunks := make([]Chunk, 0, len(snippets))
	for _, s := range snippets {
		id := s.ID
		if id == "" {
			id = uuid.NewString()
		}
		chunks = append(chunks, Chunk{
			ID:          id,
			Text:        s.Text,
			SourceLabel: s.Source,
			OriginQuery: query,
			CreatedAt:   now,
		})
	}
	if r.embedder != nil {
		r.embedChunks(ctx, chunks)
	}

	for _, coll := range r.collections {
		err := r.insert(ctx, coll, chunks)
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrPersistenceFailure, coll.Name(), err)
			metrics.IncPersistenceFailure("knowledge")
			telemetry.Warn("knowledge.persist_failed", map[string]any{"collection": coll.Name(), "error": err.Error()})
			continue
		}
		telemetry.Info("knowledge.persisted", map[string]any{"collection": coll.Name(), "chunks": len(chunks)})
	}
}

func (r *Retriever) embedChunks(ctx context.Context, chunks []Chunk) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	for i := range chunks {
		if ctx.Err() != nil {
			return
		}
		if vec, err := r.embedder.Embed(ctx, chunks[i].Text); err == nil {
			chunks[i].Embedding = vec
		}
	}
}

func (r *Retriever) insert(ctx context.Context, coll Collection, chunks []Chunk) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	err := coll.Insert(ctx, chunks, true)
	if err != nil && IsVectorUnsupported(err) {
		telemetry.Info("knowledge.persist_retry", map[string]any{"collection": coll.Name(), "error": err.Error()})
		err = coll.Insert(ctx, chunks, false)
	}
	return err
}

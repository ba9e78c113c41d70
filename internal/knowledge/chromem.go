package knowledge

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/philippgille/chromem-go"

	"creditdocs-backend/internal/embedding"
)

const (
	metaSource = "source_label"
	metaOrigin = "origin_query"
	metaTime   = "created_at"
)

// ChromemCollection is an in-process vector collection. chromem has no way to
// list documents, so Sample always fails and the chain moves on to lexical
// search.
type ChromemCollection struct {
	coll *chromem.Collection
}

// OpenChromem opens the DB at path, or an in-memory DB when path is empty.
func OpenChromem(path string) (*chromem.DB, error) {
	if path == "" {
		return chromem.NewDB(), nil
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return db, nil
}

// NewChromemCollection gets or creates name in db. The embedder is used for
// documents inserted without a vector and for lexical queries.
func NewChromemCollection(db *chromem.DB, name string, embedder embedding.Embedder) (*ChromemCollection, error) {
	var fn chromem.EmbeddingFunc
	if embedder != nil {
		fn = func(ctx context.Context, text string) ([]float32, error) {
			return embedder.Embed(ctx, text)
		}
	} else {
		fn = func(ctx context.Context, text string) ([]float32, error) {
			return nil, embedding.ErrUnavailable
		}
	}
	coll, err := db.GetOrCreateCollection(name, nil, fn)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	return &ChromemCollection{coll: coll}, nil
}

func (c *ChromemCollection) Name() string { return c.coll.Name }

func (c *ChromemCollection) VectorSearch(ctx context.Context, query []float32, k int) ([]Snippet, error) {
	n := min(k, c.coll.Count())
	if n == 0 {
		return nil, nil
	}
	results, err := c.coll.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, err
	}
	return chromemSnippets(results), nil
}

func (c *ChromemCollection) Sample(ctx context.Context, limit int) ([]Chunk, error) {
	return nil, ErrSampleUnsupported
}

// LexicalSearch filters on document content. chromem still needs a query
// vector to rank the matches.
func (c *ChromemCollection) LexicalSearch(ctx context.Context, term string, limit int) ([]Snippet, error) {
	n := min(limit, c.coll.Count())
	if n == 0 || term == "" {
		return nil, nil
	}
	results, err := c.coll.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryText:     term,
		NResults:      n,
		WhereDocument: map[string]string{"$contains": term},
	})
	if err != nil {
		return nil, err
	}
	return chromemSnippets(results), nil
}

// Insert adds documents. Chunks without a vector are embedded by the
// collection's embedding function.
func (c *ChromemCollection) Insert(ctx context.Context, chunks []Chunk, withVectors bool) error {
	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		doc := chromem.Document{
			ID:      ch.ID,
			Content: ch.Text,
			Metadata: map[string]string{
				metaSource: ch.SourceLabel,
				metaOrigin: ch.OriginQuery,
				metaTime:   ch.CreatedAt.UTC().Format(time.RFC3339),
			},
		}
		if withVectors && len(ch.Embedding) > 0 {
			doc.Embedding = ch.Embedding
		}
		docs = append(docs, doc)
	}
	return c.coll.AddDocuments(ctx, docs, runtime.NumCPU())
}

func chromemSnippets(results []chromem.Result) []Snippet {
	out := make([]Snippet, 0, len(results))
	for _, r := range results {
		out = append(out, snippetFromChunk(Chunk{
			ID:          r.ID,
			Text:        r.Content,
			SourceLabel: r.Metadata[metaSource],
		}, float64(r.Similarity)))
	}
	return out
}

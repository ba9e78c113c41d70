// Package knowledge answers questions from stored reference text, falling back
// from vector search to sampled similarity, lexical match and finally the web.
package knowledge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"creditdocs-backend/internal/shared/storage/db"
)

var (
	// ErrVectorUnsupported marks a collection that cannot store or query vectors.
	ErrVectorUnsupported = db.ErrVectorUnsupported
	// ErrPersistenceFailure wraps a failed best-effort insert.
	ErrPersistenceFailure = errors.New("knowledge persistence failure")
	// ErrSampleUnsupported is returned by collections that cannot list records.
	ErrSampleUnsupported = errors.New("collection sampling not supported")
)

// IsVectorUnsupported reports whether err means the collection has no vector
// support.
func IsVectorUnsupported(err error) bool {
	return db.IsVectorUnsupported(err)
}

// Chunk is a stored piece of reference text.
type Chunk struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Embedding   []float32 `json:"-"`
	SourceLabel string    `json:"source_label"`
	OriginQuery string    `json:"origin_query"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snippet is one retrieved result.
type Snippet struct {
	Title  string  `json:"title"`
	Text   string  `json:"text"`
	Source string  `json:"source"`
	ID     string  `json:"id"`
	Score  float64 `json:"score,omitempty"`
}

func snippetFromChunk(c Chunk, score float64) Snippet {
	return Snippet{Title: titleFor(c.Text), Text: c.Text, Source: c.SourceLabel, ID: c.ID, Score: score}
}

// titleFor uses the first line of text, shortened.
func titleFor(text string) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	r := []rune(line)
	if len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return line
}

// Collection is one knowledge store.
type Collection interface {
	Name() string
	// VectorSearch runs a server-side nearest-neighbor query.
	VectorSearch(ctx context.Context, query []float32, k int) ([]Snippet, error)
	// Sample returns up to limit stored chunks, with embeddings when stored.
	Sample(ctx context.Context, limit int) ([]Chunk, error)
	// LexicalSearch matches term against stored text.
	LexicalSearch(ctx context.Context, term string, limit int) ([]Snippet, error)
	// Insert appends chunks. withVectors=false omits embeddings.
	Insert(ctx context.Context, chunks []Chunk, withVectors bool) error
}

// Keywords returns up to max vocabulary terms found in query, ordered by first
// occurrence. With no match the whole query is the only term.
func Keywords(query string, vocabulary []string, max int) []string {
	lower := strings.ToLower(query)
	type hit struct {
		term string
		pos  int
	}
	var hits []hit
	seen := map[string]bool{}
	for _, term := range vocabulary {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			continue
		}
		if pos := strings.Index(lower, term); pos >= 0 {
			seen[term] = true
			hits = append(hits, hit{term: term, pos: pos})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return len(hits[i].term) > len(hits[j].term)
	})
	if max <= 0 {
		max = 3
	}
	out := make([]string, 0, max)
	for _, h := range hits {
		if len(out) == max {
			break
		}
		out = append(out, h.term)
	}
	if len(out) == 0 {
		if q := strings.TrimSpace(query); q != "" {
			out = append(out, q)
		}
	}
	return out
}

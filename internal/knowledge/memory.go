package knowledge

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"creditdocs-backend/internal/shared/similarity"
)

// MemoryCollection keeps chunks in process. With vectors disabled it behaves
// like a store without vector support.
type MemoryCollection struct {
	name    string
	vectors bool

	mu     sync.RWMutex
	chunks []Chunk
}

// NewMemoryCollection builds an empty collection.
func NewMemoryCollection(name string, vectors bool, seed ...Chunk) *MemoryCollection {
	return &MemoryCollection{name: name, vectors: vectors, chunks: append([]Chunk(nil), seed...)}
}

func (m *MemoryCollection) Name() string { return m.name }

func (m *MemoryCollection) VectorSearch(ctx context.Context, query []float32, k int) ([]Snippet, error) {
	if !m.vectors {
		return nil, ErrVectorUnsupported
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var scored []similarity.Scored
	for i, c := range m.chunks {
		if score, ok := similarity.Cosine(query, c.Embedding); ok {
			scored = append(scored, similarity.Scored{Index: i, Score: score})
		}
	}
	var out []Snippet
	for _, s := range similarity.TopK(scored, k) {
		out = append(out, snippetFromChunk(m.chunks[s.Index], s.Score))
	}
	return out, nil
}

func (m *MemoryCollection) Sample(ctx context.Context, limit int) ([]Chunk, error) {
	m.mu.RLock()
	out := append([]Chunk(nil), m.chunks...)
	m.mu.RUnlock()
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryCollection) LexicalSearch(ctx context.Context, term string, limit int) ([]Snippet, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Snippet
	for _, c := range m.chunks {
		if strings.Contains(strings.ToLower(c.Text), term) {
			out = append(out, snippetFromChunk(c, 0))
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryCollection) Insert(ctx context.Context, chunks []Chunk, withVectors bool) error {
	if withVectors && !m.vectors {
		for _, c := range chunks {
			if len(c.Embedding) > 0 {
				return ErrVectorUnsupported
			}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		if !withVectors || !m.vectors {
			c.Embedding = nil
		}
		m.chunks = append(m.chunks, c)
	}
	return nil
}

// Len returns the number of stored chunks.
func (m *MemoryCollection) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

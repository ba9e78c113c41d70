package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditdocs-backend/internal/knowledge/websearch"
)

type mapEmbedder map[string][]float32

func (m mapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := m[text]; ok {
		return v, nil
	}
	return []float32{0, 1}, nil
}

type stubCollection struct {
	name      string
	vectorErr error
	vector    []Snippet
	sample    []Chunk
	sampleErr error
	lexical   []Snippet
	insertErr []error
	inserts   []bool
	stored    []Chunk
	calls     []string
}

func (s *stubCollection) Name() string { return s.name }

func (s *stubCollection) VectorSearch(ctx context.Context, q []float32, k int) ([]Snippet, error) {
	s.calls = append(s.calls, "vector")
	return s.vector, s.vectorErr
}

func (s *stubCollection) Sample(ctx context.Context, limit int) ([]Chunk, error) {
	s.calls = append(s.calls, "sample")
	return s.sample, s.sampleErr
}

func (s *stubCollection) LexicalSearch(ctx context.Context, term string, limit int) ([]Snippet, error) {
	s.calls = append(s.calls, "lexical:"+term)
	return s.lexical, nil
}

func (s *stubCollection) Insert(ctx context.Context, chunks []Chunk, withVectors bool) error {
	s.inserts = append(s.inserts, withVectors)
	if len(s.insertErr) == 0 {
		s.stored = append(s.stored, chunks...)
		return nil
	}
	err := s.insertErr[0]
	s.insertErr = s.insertErr[1:]
	return err
}

// hungCollection never finishes a write until its context ends.
type hungCollection struct {
	stubCollection
}

func (h *hungCollection) Insert(ctx context.Context, chunks []Chunk, withVectors bool) error {
	<-ctx.Done()
	return ctx.Err()
}

type stubWeb struct {
	results []websearch.Result
	err     error
	calls   int
}

func (w *stubWeb) Search(ctx context.Context, query string, limit int) ([]websearch.Result, error) {
	w.calls++
	return w.results, w.err
}

func TestVectorHitShortCircuits(t *testing.T) {
	first := &stubCollection{name: "fcra_knowledge", vector: []Snippet{{ID: "1", Text: "FCRA 611"}}}
	second := &stubCollection{name: "general_knowledge"}
	web := &stubWeb{}
	r := NewRetriever(Config{}, mapEmbedder{}, []Collection{first, second}, web)

	res, err := r.Retrieve(context.Background(), "How do I dispute under the FCRA?", Options{})

	require.NoError(t, err)
	assert.Equal(t, TierVector, res.Tier)
	assert.Equal(t, "fcra_knowledge", res.Collection)
	assert.Equal(t, "dispute", res.Term)
	assert.Empty(t, second.calls)
	assert.Zero(t, web.calls)
	assert.Contains(t, res.Text, "FCRA 611")
}

func TestVectorFailureFallsBackToSampledCosine(t *testing.T) {
	emb := mapEmbedder{"fcra": {1, 0}, "stored without vector": {1, 0}}
	coll := &stubCollection{
		name:      "fcra_knowledge",
		vectorErr: errors.New(`operator does not exist: vector <=> vector`),
		sample: []Chunk{
			{ID: "a", Text: "far away", Embedding: []float32{0, 1}},
			{ID: "b", Text: "stored without vector"},
		},
	}
	r := NewRetriever(Config{}, emb, []Collection{coll}, nil)

	res, err := r.Retrieve(context.Background(), "fcra", Options{})

	require.NoError(t, err)
	assert.Equal(t, TierSample, res.Tier)
	require.Len(t, res.Snippets, 2)
	assert.Equal(t, "b", res.Snippets[0].ID)
	assert.InDelta(t, 1.0, res.Snippets[0].Score, 1e-9)
	assert.Equal(t, []string{"vector", "sample"}, coll.calls)
}

func TestLexicalAfterEmptySample(t *testing.T) {
	coll := &stubCollection{name: "c", lexical: []Snippet{{ID: "x", Text: "charge-off rules"}}}
	r := NewRetriever(Config{}, mapEmbedder{}, []Collection{coll}, nil)

	res, err := r.Retrieve(context.Background(), "charge-off", Options{})

	require.NoError(t, err)
	assert.Equal(t, TierLexical, res.Tier)
	assert.Equal(t, []string{"vector", "sample", "lexical:charge-off"}, coll.calls)
}

func TestWithoutEmbedderOnlyLexicalRuns(t *testing.T) {
	coll := &stubCollection{name: "c"}
	web := &stubWeb{results: []websearch.Result{{Title: "T", URL: "https://x", Snippet: "s"}}}
	r := NewRetriever(Config{}, nil, []Collection{coll}, web)

	res, err := r.Retrieve(context.Background(), "nothing in vocabulary", Options{})

	require.NoError(t, err)
	assert.Equal(t, TierWeb, res.Tier)
	assert.Equal(t, []string{"lexical:nothing in vocabulary"}, coll.calls)
}

func TestTermsTriedInOrderAcrossCollections(t *testing.T) {
	first := &stubCollection{name: "a"}
	second := &stubCollection{name: "b"}
	r := NewRetriever(Config{}, nil, []Collection{first, second}, nil)

	res, err := r.Retrieve(context.Background(), "fdcpa and bankruptcy", Options{})

	require.NoError(t, err)
	assert.Equal(t, TierNone, res.Tier)
	assert.Equal(t, []string{"lexical:fdcpa", "lexical:bankruptcy"}, first.calls)
	assert.Equal(t, []string{"lexical:fdcpa", "lexical:bankruptcy"}, second.calls)
}

func TestWebFallbackPersistsWithVectorRetry(t *testing.T) {
	fcra := &stubCollection{name: "fcra_knowledge", insertErr: []error{ErrVectorUnsupported}}
	general := &stubCollection{name: "general_knowledge", insertErr: []error{errors.New("disk full")}}
	web := &stubWeb{results: []websearch.Result{{Title: "CFPB", URL: "https://cfpb.gov/x", Snippet: "Dispute errors."}}}
	r := NewRetriever(Config{}, mapEmbedder{}, []Collection{fcra, general}, web)

	res, err := r.Retrieve(context.Background(), "dispute", Options{Persist: true})

	require.NoError(t, err)
	assert.Equal(t, TierWeb, res.Tier)
	require.Len(t, res.Snippets, 1)
	assert.Equal(t, "web:https://cfpb.gov/x", res.Snippets[0].Source)
	assert.Equal(t, []bool{true, false}, fcra.inserts)
	assert.Equal(t, []bool{true}, general.inserts)
}

func TestPersistedChunksKeepReturnedIDs(t *testing.T) {
	coll := &stubCollection{name: "general_knowledge"}
	web := &stubWeb{results: []websearch.Result{
		{Title: "CFPB", URL: "https://cfpb.gov/x", Snippet: "Dispute errors."},
		{Title: "FTC", URL: "https://ftc.gov/y", Snippet: "Know your rights."},
	}}
	r := NewRetriever(Config{}, mapEmbedder{}, []Collection{coll}, web)

	res, err := r.Retrieve(context.Background(), "dispute", Options{Persist: true})

	require.NoError(t, err)
	require.Len(t, res.Snippets, 2)
	require.Len(t, coll.stored, 2)
	for i, s := range res.Snippets {
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, s.ID, coll.stored[i].ID)
	}
	assert.NotEqual(t, res.Snippets[0].ID, res.Snippets[1].ID)
}

func TestHungPersistenceDoesNotHoldResult(t *testing.T) {
	coll := &hungCollection{stubCollection{name: "slow"}}
	web := &stubWeb{results: []websearch.Result{{Title: "CFPB", URL: "https://cfpb.gov/x", Snippet: "Dispute errors."}}}
	r := NewRetriever(Config{Timeout: 100 * time.Millisecond}, nil, []Collection{coll}, web)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	res, err := r.Retrieve(ctx, "dispute", Options{Persist: true})

	require.NoError(t, err)
	assert.Equal(t, TierWeb, res.Tier)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNoPersistWithoutFlag(t *testing.T) {
	coll := &stubCollection{name: "c"}
	web := &stubWeb{results: []websearch.Result{{Title: "T", URL: "https://x", Snippet: "s"}}}
	_, err := NewRetriever(Config{}, nil, []Collection{coll}, web).Retrieve(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Empty(t, coll.inserts)
}

func TestWebFailureYieldsEmptyResponse(t *testing.T) {
	web := &stubWeb{err: errors.New("blocked")}
	res, err := NewRetriever(Config{}, nil, nil, web).Retrieve(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, TierNone, res.Tier)
	assert.Empty(t, res.Snippets)
}

func TestRetrieveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRetriever(Config{}, nil, nil, &stubWeb{}).Retrieve(ctx, "q", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeywords(t *testing.T) {
	vocab := []string{"fcra", "dispute", "charge-off", "identity theft"}
	assert.Equal(t, []string{"identity theft", "dispute", "charge-off"},
		Keywords("Identity theft: how to dispute a charge-off under FCRA", vocab, 3))
	assert.Equal(t, []string{"dispute", "charge-off"}, Keywords("dispute a charge-off", vocab, 3))
	assert.Equal(t, []string{"what now?"}, Keywords(" what now? ", vocab, 3))
	assert.Empty(t, Keywords("  ", vocab, 3))
}

func TestMemoryCollectionWithoutVectors(t *testing.T) {
	m := NewMemoryCollection("general", false)
	ctx := context.Background()

	assert.ErrorIs(t, m.Insert(ctx, []Chunk{{ID: "1", Text: "Late payment rules", Embedding: []float32{1}}}, true), ErrVectorUnsupported)
	require.NoError(t, m.Insert(ctx, []Chunk{{ID: "1", Text: "Late payment rules", Embedding: []float32{1}}}, false))

	_, err := m.VectorSearch(ctx, []float32{1}, 5)
	assert.True(t, IsVectorUnsupported(err))

	got, err := m.LexicalSearch(ctx, "LATE PAYMENT", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Late payment rules", got[0].Title)

	sample, err := m.Sample(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, sample[0].Embedding)
}

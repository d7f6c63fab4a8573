package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/store"
)

type hashEncoder struct{}

func (hashEncoder) vector(text string) []float32 {
	h := sha256.Sum256([]byte(text))
	v := make([]float32, 8)
	var norm float64
	for i := range v {
		v[i] = float32(h[i]) + 1
		norm += float64(v[i]) * float64(v[i])
	}
	inv := float32(1.0 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func (e hashEncoder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e hashEncoder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (hashEncoder) Dimensions() int                   { return 8 }
func (hashEncoder) ModelID() string                   { return "hash-model" }
func (hashEncoder) Available(_ context.Context) error { return nil }
func (hashEncoder) Close()                            {}

// failingReranker simulates a cross-encoder endpoint being down.
type failingReranker struct{}

func (failingReranker) Rerank(_ context.Context, _ string, _ []Passage) ([]Passage, error) {
	return nil, apperrors.New(apperrors.ErrCodeEncoderUnavailable, "connection refused", nil)
}

func (failingReranker) Available(_ context.Context) error {
	return apperrors.New(apperrors.ErrCodeEncoderUnavailable, "connection refused", nil)
}

// reversingReranker reverses the pool, proving rerank order wins.
type reversingReranker struct{}

func (reversingReranker) Rerank(_ context.Context, _ string, passages []Passage) ([]Passage, error) {
	out := make([]Passage, len(passages))
	for i, p := range passages {
		out[len(passages)-1-i] = p
		out[len(passages)-1-i].Score = float64(i)
	}
	return out, nil
}

func (reversingReranker) Available(_ context.Context) error { return nil }

// scoringReranker assigns scores without reordering and records the
// pool it was handed.
type scoringReranker struct {
	got []Passage
}

func (s *scoringReranker) Rerank(_ context.Context, _ string, passages []Passage) ([]Passage, error) {
	s.got = append([]Passage(nil), passages...)
	out := make([]Passage, len(passages))
	for i, p := range passages {
		out[i] = p
		out[i].Score = float64(p.Ordinal)
	}
	return out, nil
}

func (*scoringReranker) Available(_ context.Context) error { return nil }

func newSearchStore(t *testing.T, chunks []store.Chunk) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), t.TempDir(), hashEncoder{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	if len(chunks) > 0 {
		_, err = s.Ingest(context.Background(), chunks)
		require.NoError(t, err)
	}
	return s
}

func corpusChunks() []store.Chunk {
	var chunks []store.Chunk
	for i := 0; i < 6; i++ {
		chunks = append(chunks, store.Chunk{
			Text:   fmt.Sprintf("El contrato de arrendamiento se renueva, clausula %d.", i),
			Source: "contrato.pdf",
			Page:   i + 1,
		})
	}
	for i := 0; i < 6; i++ {
		chunks = append(chunks, store.Chunk{
			Text:   fmt.Sprintf("The insurance policy covers damages, clause %d.", i),
			Source: "policy.txt",
			Page:   i + 1,
		})
	}
	return chunks
}

func TestRetrieveEmptyIndex(t *testing.T) {
	st := newSearchStore(t, nil)
	r := NewRetriever(st, hashEncoder{}, nil, 4)

	res, err := r.Retrieve(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyIndex, res.Outcome)
	assert.Empty(t, res.Passages)
}

func TestRetrieveFindsLexicalMatch(t *testing.T) {
	st := newSearchStore(t, corpusChunks())
	r := NewRetriever(st, hashEncoder{}, nil, 4)

	res, err := r.Retrieve(context.Background(), "insurance policy damages", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	require.NotEmpty(t, res.Passages)
	assert.LessOrEqual(t, len(res.Passages), 4)

	found := false
	for _, p := range res.Passages {
		if p.Source == "policy.txt" {
			found = true
		}
		assert.NotEmpty(t, p.Text)
		assert.Positive(t, p.Page)
	}
	assert.True(t, found, "expected a policy.txt passage in %v", res.Passages)
}

func TestRetrieveDiversifiesAcrossSources(t *testing.T) {
	st := newSearchStore(t, corpusChunks())
	r := NewRetriever(st, hashEncoder{}, nil, 4)

	res, err := r.Retrieve(context.Background(), "clause renewal damages", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, res.Outcome)

	counts := map[string]int{}
	for _, p := range res.Passages {
		counts[p.Source]++
	}
	assert.Len(t, counts, 2, "both documents should contribute")
}

func TestRetrieveSourceFilterExact(t *testing.T) {
	st := newSearchStore(t, corpusChunks())
	r := NewRetriever(st, hashEncoder{}, nil, 4)

	res, err := r.Retrieve(context.Background(), "clause", "contrato.pdf")
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, "contrato.pdf", res.ResolvedSource)
	for _, p := range res.Passages {
		assert.Equal(t, "contrato.pdf", p.Source)
	}
}

func TestRetrieveSourceFilterSubstring(t *testing.T) {
	st := newSearchStore(t, corpusChunks())
	r := NewRetriever(st, hashEncoder{}, nil, 4)

	res, err := r.Retrieve(context.Background(), "clause", "CONTRATO")
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, "contrato.pdf", res.ResolvedSource)
}

func TestRetrieveSourceFilterNotFound(t *testing.T) {
	st := newSearchStore(t, corpusChunks())
	r := NewRetriever(st, hashEncoder{}, nil, 4)

	res, err := r.Retrieve(context.Background(), "clause", "missing.pdf")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDocumentNotFound, res.Outcome)
}

func TestFilterToSourceForcesDocumentIn(t *testing.T) {
	st := newSearchStore(t, corpusChunks())
	r := NewRetriever(st, hashEncoder{}, nil, 4)

	// A pool that missed the document entirely: the filter must pull
	// the document's own chunks in rather than return nothing.
	pool := []Passage{{Ordinal: 6, Source: "policy.txt", Text: "x", Page: 1}}
	got := r.filterToSource(pool, "contrato.pdf")
	require.Len(t, got, 6)
	for _, p := range got {
		assert.Equal(t, "contrato.pdf", p.Source)
		assert.Zero(t, p.Score)
	}
}

func TestFilterToSourceUnionsUnsurfacedChunks(t *testing.T) {
	st := newSearchStore(t, corpusChunks())
	r := NewRetriever(st, hashEncoder{}, nil, 4)

	// Only one of contrato.pdf's six chunks surfaced in retrieval; the
	// filter must still hand the reranker all six, with the surfaced
	// one keeping its retrieval score.
	pool := []Passage{
		{Ordinal: 2, Source: "contrato.pdf", Text: "x", Page: 3, Score: 3.5},
		{Ordinal: 7, Source: "policy.txt", Text: "y", Page: 2, Score: 2.0},
	}
	got := r.filterToSource(pool, "contrato.pdf")
	require.Len(t, got, 6)

	byOrdinal := map[int]Passage{}
	for _, p := range got {
		assert.Equal(t, "contrato.pdf", p.Source)
		byOrdinal[p.Ordinal] = p
	}
	require.Len(t, byOrdinal, 6)
	assert.Equal(t, 3.5, byOrdinal[2].Score)
	for ord, p := range byOrdinal {
		if ord != 2 {
			assert.Zero(t, p.Score)
			assert.NotEmpty(t, p.Text)
		}
	}
}

func TestRetrieveDiversifiesBeforeRerank(t *testing.T) {
	st := newSearchStore(t, corpusChunks())
	rr := &scoringReranker{}
	r := NewRetriever(st, hashEncoder{}, rr, 6)

	res, err := r.Retrieve(context.Background(), "clause renewal damages", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, res.Outcome)
	require.NotEmpty(t, res.Passages)

	// The reranker must see the already-diversified pool, not the raw
	// merged candidates.
	assert.LessOrEqual(t, len(rr.got), 6)
	sources := map[string]bool{}
	for _, p := range rr.got {
		sources[p.Source] = true
	}
	assert.Len(t, sources, 2, "diversified pool should span both documents")

	// The final order is the reranker's score order, descending.
	for i := 1; i < len(res.Passages); i++ {
		assert.GreaterOrEqual(t, res.Passages[i-1].Score, res.Passages[i].Score,
			"passages out of score order at %d: %v", i, res.Passages)
	}
}

func TestRetrieveRerankerDownFallsBack(t *testing.T) {
	st := newSearchStore(t, corpusChunks())
	r := NewRetriever(st, hashEncoder{}, failingReranker{}, 4)

	res, err := r.Retrieve(context.Background(), "insurance clause", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.NotEmpty(t, res.Passages)
}

func TestRetrieveRerankOrderWins(t *testing.T) {
	st := newSearchStore(t, corpusChunks())

	plain := NewRetriever(st, hashEncoder{}, nil, 12)
	reversed := NewRetriever(st, hashEncoder{}, reversingReranker{}, 12)

	a, err := plain.Retrieve(context.Background(), "clause", "contrato.pdf")
	require.NoError(t, err)
	b, err := reversed.Retrieve(context.Background(), "clause", "contrato.pdf")
	require.NoError(t, err)

	require.Equal(t, len(a.Passages), len(b.Passages))
	if len(a.Passages) > 1 {
		assert.Equal(t, a.Passages[0].Ordinal, b.Passages[len(b.Passages)-1].Ordinal)
	}
}

func TestNoOpRerankerKeepsOrder(t *testing.T) {
	in := []Passage{{Ordinal: 2}, {Ordinal: 0}, {Ordinal: 1}}
	out, err := NoOpReranker{}.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

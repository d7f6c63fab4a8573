package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/soberano/soberano/internal/errors"
)

type fakeEncoder struct {
	queryCalls int
	docCalls   int
}

func (f *fakeEncoder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.docCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEncoder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queryCalls++
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeEncoder) Dimensions() int                   { return 3 }
func (f *fakeEncoder) ModelID() string                   { return "fake-model" }
func (f *fakeEncoder) Available(_ context.Context) error { return nil }
func (f *fakeEncoder) Close()                            {}

func TestResolveProfile(t *testing.T) {
	tests := []struct {
		model     string
		docPrefix string
		qryPrefix string
	}{
		{"intfloat/multilingual-e5-base", "passage: ", "query: "},
		{"intfloat/e5-large-v2", "passage: ", "query: "},
		{"BAAI/bge-small-en-v1.5", "passage: ", "query: "},
		{"BAAI/bge-m3", "passage: ", "query: "},
		{"nomic-embed-text", "", ""},
	}
	for _, tt := range tests {
		p := ResolveProfile(tt.model)
		assert.Equal(t, tt.docPrefix, p.DocumentPrefix, tt.model)
		assert.Equal(t, tt.qryPrefix, p.QueryPrefix, tt.model)
	}
}

func TestProfilePrefixApplication(t *testing.T) {
	p := ResolveProfile("multilingual-e5-base")
	assert.Equal(t, "passage: renewal clause", p.ForDocument("renewal clause"))
	assert.Equal(t, "query: when does it renew", p.ForQuery("when does it renew"))
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	// Zero vector must not produce NaN.
	z := []float32{0, 0, 0}
	Normalize(z)
	assert.Equal(t, []float32{0, 0, 0}, z)
}

func newEmbeddingServer(t *testing.T, indexes []int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		type datum struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]datum, len(indexes))
		for i, idx := range indexes {
			data[i] = datum{Object: "embedding", Index: idx, Embedding: []float32{1, 2, 3}}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "multilingual-e5-base",
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestOpenAIEncoderOrdersByResultIndex(t *testing.T) {
	ts := newEmbeddingServer(t, []int{1, 0})
	e := NewOpenAIEncoder(ts.URL, "multilingual-e5-base")

	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.NotNil(t, vecs[0])
	assert.NotNil(t, vecs[1])
}

func TestOpenAIEncoderRejectsBadResultIndex(t *testing.T) {
	tests := []struct {
		name    string
		indexes []int
	}{
		{"out of range", []int{3}},
		{"negative", []int{-1}},
		{"duplicate", []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newEmbeddingServer(t, tt.indexes)
			e := NewOpenAIEncoder(ts.URL, "multilingual-e5-base")

			texts := make([]string, len(tt.indexes))
			for i := range texts {
				texts[i] = "chunk"
			}
			_, err := e.EmbedDocuments(context.Background(), texts)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeEncoderUnavailable, apperrors.CodeOf(err))
		})
	}
}

func TestOpenAIEncoderEnforcesConfiguredDimensions(t *testing.T) {
	ts := newEmbeddingServer(t, []int{0}) // serves 3-dim vectors
	e := NewOpenAIEncoder(ts.URL, "multilingual-e5-base", WithDimensions(8))
	assert.Equal(t, 8, e.Dimensions())

	_, err := e.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDimensionMismatch, apperrors.CodeOf(err))

	ok := NewOpenAIEncoder(ts.URL, "multilingual-e5-base", WithDimensions(3))
	_, err = ok.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
}

func TestCachedEncoderQueryHit(t *testing.T) {
	inner := &fakeEncoder{}
	c := NewCachedEncoder(inner, 10)

	v1, err := c.EmbedQuery(context.Background(), "same question")
	require.NoError(t, err)
	v2, err := c.EmbedQuery(context.Background(), "same question")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.queryCalls)

	_, err = c.EmbedQuery(context.Background(), "different question")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.queryCalls)
}

func TestCachedEncoderDocumentsPassThrough(t *testing.T) {
	inner := &fakeEncoder{}
	c := NewCachedEncoder(inner, 10)

	for i := 0; i < 2; i++ {
		vecs, err := c.EmbedDocuments(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
	}
	assert.Equal(t, 2, inner.docCalls)
}

func TestCachedEncoderDelegates(t *testing.T) {
	inner := &fakeEncoder{}
	c := NewCachedEncoder(inner, 0)
	assert.Equal(t, 3, c.Dimensions())
	assert.Equal(t, "fake-model", c.ModelID())
	assert.NoError(t, c.Available(context.Background()))
}

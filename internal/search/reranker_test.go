package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/soberano/soberano/internal/errors"
)

func TestHTTPRerankerReorders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/rerank", r.URL.Path)

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is the rent", req.Query)
		require.Len(t, req.Documents, 3)

		// Score the last document highest.
		resp := rerankResponse{}
		resp.Results = []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		}{
			{Index: 2, RelevanceScore: 0.9},
			{Index: 0, RelevanceScore: 0.4},
			{Index: 1, RelevanceScore: 0.1},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	rr := NewHTTPReranker(srv.URL, "reranker-model", time.Second)
	in := []Passage{
		{Ordinal: 10, Text: "a"},
		{Ordinal: 11, Text: "b"},
		{Ordinal: 12, Text: "c"},
	}
	out, err := rr.Rerank(context.Background(), "what is the rent", in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 12, out[0].Ordinal)
	assert.InDelta(t, 0.9, out[0].Score, 1e-9)
	assert.Equal(t, 10, out[1].Ordinal)
	assert.Equal(t, 11, out[2].Ordinal)
}

func TestHTTPRerankerCapsCandidates(t *testing.T) {
	var gotDocs int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotDocs = len(req.Documents)
		json.NewEncoder(w).Encode(rerankResponse{})
	}))
	defer srv.Close()

	rr := NewHTTPReranker(srv.URL, "m", time.Second)
	in := make([]Passage, 100)
	for i := range in {
		in[i] = Passage{Ordinal: i, Text: "t"}
	}
	out, err := rr.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxCandidates, gotDocs)
	// Nothing is dropped, the tail keeps its place.
	assert.Len(t, out, 100)
	assert.Equal(t, 99, out[99].Ordinal)

	rr = NewHTTPReranker(srv.URL, "m", time.Second, WithMaxCandidates(10))
	_, err = rr.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, 10, gotDocs)
}

func TestHTTPRerankerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	rr := NewHTTPReranker(srv.URL, "m", time.Second)
	_, err := rr.Rerank(context.Background(), "q", []Passage{{Text: "t"}})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeEncoderUnavailable, apperrors.CodeOf(err))
}

func TestHTTPRerankerUnreachable(t *testing.T) {
	rr := NewHTTPReranker("http://127.0.0.1:1", "m", 200*time.Millisecond)
	_, err := rr.Rerank(context.Background(), "q", []Passage{{Text: "t"}})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeEncoderUnavailable, apperrors.CodeOf(err))
}

func TestHTTPRerankerEmptyInput(t *testing.T) {
	rr := NewHTTPReranker("http://127.0.0.1:1", "m", time.Second)
	out, err := rr.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

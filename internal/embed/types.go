// Package embed turns text into dense vectors using a local
// OpenAI-compatible embedding endpoint (Ollama or llama-server).
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per embedding request.
	DefaultBatchSize = 32

	// DefaultTimeout covers a single embedding request, including cold
	// model load on the first call.
	DefaultTimeout = 120 * time.Second

	// DefaultQueryCacheSize bounds the query embedding LRU.
	DefaultQueryCacheSize = 1000
)

// Encoder produces embeddings for documents and queries. Documents and
// queries are embedded through separate methods because asymmetric
// models (e5, bge) require different input prefixes for each side.
type Encoder interface {
	// EmbedDocuments embeds a batch of passage texts, preserving order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector dimensionality, 0 until known.
	Dimensions() int

	// ModelID identifies the embedding model. Stored with the index so
	// a model change can be detected on load.
	ModelID() string

	// Available checks that the backing endpoint is reachable.
	Available(ctx context.Context) error

	// Close releases client resources.
	Close()
}

// Normalize scales v to unit length in place. Unit vectors make cosine
// similarity equal to the dot product.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

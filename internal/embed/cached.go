package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEncoder wraps an Encoder with an LRU over query embeddings.
// Repeated questions skip the embedding round trip entirely. Document
// embeddings are not cached: each chunk is embedded once at ingest and
// the dedup layer above already prevents re-embedding.
type CachedEncoder struct {
	inner Encoder
	cache *lru.Cache[string, []float32]
}

// NewCachedEncoder wraps inner with a query cache of the given size.
func NewCachedEncoder(inner Encoder, size int) *CachedEncoder {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEncoder{inner: inner, cache: cache}
}

var _ Encoder = (*CachedEncoder)(nil)

func (c *CachedEncoder) key(text string) string {
	h := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelID()))
	return hex.EncodeToString(h[:])
}

// EmbedQuery returns a cached embedding when available.
func (c *CachedEncoder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if v, ok := c.cache.Get(k); ok {
		return v, nil
	}
	v, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, v)
	return v, nil
}

// EmbedDocuments passes straight through to the inner encoder.
func (c *CachedEncoder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedDocuments(ctx, texts)
}

func (c *CachedEncoder) Dimensions() int                     { return c.inner.Dimensions() }
func (c *CachedEncoder) ModelID() string                     { return c.inner.ModelID() }
func (c *CachedEncoder) Available(ctx context.Context) error { return c.inner.Available(ctx) }
func (c *CachedEncoder) Close()                              { c.inner.Close() }

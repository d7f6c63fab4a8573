// Package cache provides a TTL-bounded LRU for answered questions.
// Local generation is the slow path; repeated questions should not pay
// for it twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultSize bounds the number of cached answers.
	DefaultSize = 100

	// DefaultTTL expires answers so a re-ingested document is not
	// shadowed by stale text for long.
	DefaultTTL = 5 * time.Minute
)

// Stats are cumulative hit/miss counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// Cache is a TTL LRU keyed by normalized question plus source filter.
type Cache[V any] struct {
	lru    *expirable.LRU[string, V]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache of at most size entries living at most ttl.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Key builds the cache key. Questions are case-folded and
// whitespace-collapsed so trivial rephrasings hit the same entry.
func Key(question, source string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	h := sha256.Sum256([]byte(norm + "\x00" + source))
	return hex.EncodeToString(h[:])
}

// Get looks up a cached value.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores a value.
func (c *Cache[V]) Set(key string, v V) {
	c.lru.Add(key, v)
}

// Purge empties the cache. Called after ingest and delete, since any
// cached answer may cite text that just changed.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Stats returns the counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.lru.Len(),
	}
}

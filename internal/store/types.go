// Package store persists the document index: chunk metadata, the
// vector index over chunk embeddings, and the lexical BM25 index.
// Metadata is the source of truth; both indexes can be rebuilt from it.
package store

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// Chunk is one indexed text segment of a document.
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Page   int    `json:"page"`
}

// Key returns the chunk's deduplication key: a SHA-1 over source, page
// and text. Two chunks with the same key are the same chunk.
func (c Chunk) Key() string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s", c.Source, c.Page, c.Text)))
	return hex.EncodeToString(h[:])
}

// Hit is one scored chunk returned by an index lookup. Ordinal is the
// chunk's position in the metadata arrays.
type Hit struct {
	Ordinal int
	Score   float64
}

// IngestResult summarizes a completed ingestion.
type IngestResult struct {
	Source     string
	Added      int
	Duplicates int
	Total      int
	Rebuilt    bool
}

// Package search implements hybrid retrieval: dense vector search and
// BM25 merged into one candidate pool, optionally filtered to a single
// document, reranked by a cross-encoder, and diversified across
// sources.
package search

// Passage is one retrieved chunk with its retrieval score.
type Passage struct {
	Ordinal int     `json:"-"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
	Source  string  `json:"source"`
	Page    int     `json:"page"`
}

// Outcome classifies a retrieval result.
type Outcome int

const (
	// OutcomeFound means passages were retrieved.
	OutcomeFound Outcome = iota
	// OutcomeEmptyIndex means nothing has been ingested yet.
	OutcomeEmptyIndex
	// OutcomeDocumentNotFound means a source filter matched no indexed
	// document.
	OutcomeDocumentNotFound
)

// Result is the outcome of one retrieval.
type Result struct {
	Outcome  Outcome
	Passages []Passage
	// ResolvedSource is the document a source filter resolved to, empty
	// when no filter was applied.
	ResolvedSource string
}

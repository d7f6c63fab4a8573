package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/soberano/soberano/internal/embed"
	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/store"
)

// Over-fetch factors. Retrieval pulls far more candidates than the
// final k so that reranking and diversification have something to work
// with; the floors keep small k from starving them.
const (
	denseFactor   = 8
	denseFloor    = 80
	lexicalFactor = 6
	lexicalFloor  = 60

	// diversifyFactor sizes the pool diversification draws from.
	diversifyFactor = 10
)

// Retriever runs hybrid retrieval over a Store.
type Retriever struct {
	store    *store.Store
	encoder  embed.Encoder
	reranker Reranker
	topK     int
}

// NewRetriever wires a retriever. A nil reranker degrades to retrieval
// order.
func NewRetriever(st *store.Store, enc embed.Encoder, rr Reranker, topK int) *Retriever {
	if topK <= 0 {
		topK = 4
	}
	return &Retriever{store: st, encoder: enc, reranker: rr, topK: topK}
}

// Retrieve returns the best passages for the question. sourceFilter,
// when non-empty, restricts retrieval to one document: exact file name
// first, case-insensitive substring as fallback.
//
// The pipeline narrows the merged candidate pool first (source filter
// or cross-document diversification) and reranks last, so the final
// order is the cross-encoder's verdict over the narrowed set.
func (r *Retriever) Retrieve(ctx context.Context, question, sourceFilter string) (*Result, error) {
	corpus := r.store.Len()
	if corpus == 0 {
		return &Result{Outcome: OutcomeEmptyIndex}, nil
	}

	resolved := ""
	if sourceFilter != "" {
		var ok bool
		resolved, ok = r.resolveSource(sourceFilter)
		if !ok {
			return &Result{Outcome: OutcomeDocumentNotFound}, nil
		}
	}

	pool, err := r.candidates(ctx, question, corpus)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		pool = r.filterToSource(pool, resolved)
	} else {
		limit := min(r.topK*diversifyFactor, len(pool))
		pool = Diversify(pool[:limit], r.topK)
	}

	pool, scored, err := r.rerank(ctx, question, pool)
	if err != nil {
		return nil, err
	}
	if scored {
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })
	}
	if len(pool) > r.topK {
		pool = pool[:r.topK]
	}

	return &Result{
		Outcome:        OutcomeFound,
		Passages:       pool,
		ResolvedSource: resolved,
	}, nil
}

// candidates merges dense and lexical hits, dense first, deduplicated
// by chunk ordinal.
func (r *Retriever) candidates(ctx context.Context, question string, corpus int) ([]Passage, error) {
	queryVec, err := r.encoder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	kk := min(max(r.topK*denseFactor, denseFloor), corpus)
	dense, err := r.store.Dense(ctx, queryVec, kk)
	if err != nil {
		return nil, err
	}

	topn := min(max(r.topK*lexicalFactor, lexicalFloor), corpus)
	lexical, err := r.store.Lexical(ctx, question, topn)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(dense)+len(lexical))
	pool := make([]Passage, 0, len(dense)+len(lexical))
	add := func(h store.Hit) {
		if seen[h.Ordinal] {
			return
		}
		seen[h.Ordinal] = true
		c := r.store.Chunk(h.Ordinal)
		pool = append(pool, Passage{
			Ordinal: h.Ordinal,
			Score:   h.Score,
			Text:    c.Text,
			Source:  c.Source,
			Page:    c.Page,
		})
	}
	for _, h := range dense {
		add(h)
	}
	for _, h := range lexical {
		add(h)
	}

	slog.Debug("retrieval candidates",
		"dense", len(dense), "lexical", len(lexical), "merged", len(pool))
	return pool, nil
}

// resolveSource maps a user-supplied filter to an indexed document
// name. Exact matches win; otherwise the first case-insensitive
// substring match in alphabetical order is used.
func (r *Retriever) resolveSource(filter string) (string, bool) {
	sources := r.store.Sources()
	for _, s := range sources {
		if s.Name == filter {
			return s.Name, true
		}
	}
	lower := strings.ToLower(filter)
	for _, s := range sources {
		if strings.Contains(strings.ToLower(s.Name), lower) {
			return s.Name, true
		}
	}
	return "", false
}

// filterToSource restricts the pool to one document and force-includes
// every chunk of that document from the metadata, not just the ones
// retrieval happened to surface. Surfaced passages keep their retrieval
// scores; the rest join at a placeholder score, so the reranker always
// judges the document's complete chunk set.
func (r *Retriever) filterToSource(pool []Passage, source string) []Passage {
	kept := make([]Passage, 0, len(pool))
	surfaced := make(map[int]bool)
	for _, p := range pool {
		if p.Source == source {
			kept = append(kept, p)
			surfaced[p.Ordinal] = true
		}
	}

	for _, ord := range r.store.OrdinalsFor(source) {
		if surfaced[ord] {
			continue
		}
		c := r.store.Chunk(ord)
		kept = append(kept, Passage{Ordinal: ord, Text: c.Text, Source: c.Source, Page: c.Page})
	}

	slog.Debug("source filter pool",
		"source", source, "surfaced", len(surfaced), "total", len(kept))
	return kept
}

// rerank runs the cross-encoder over the pool. The second return
// reports whether the pool actually carries cross-encoder scores;
// without a reranker, or with one that is down, the pool comes back in
// its pre-rerank order.
func (r *Retriever) rerank(ctx context.Context, question string, pool []Passage) ([]Passage, bool, error) {
	if r.reranker == nil {
		return pool, false, nil
	}
	reranked, err := r.reranker.Rerank(ctx, question, pool)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeEncoderUnavailable {
			slog.Warn("reranker unavailable, keeping retrieval order", "error", err)
			return pool, false, nil
		}
		return nil, false, err
	}
	return reranked, true, nil
}

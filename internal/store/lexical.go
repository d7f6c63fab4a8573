package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	apperrors "github.com/soberano/soberano/internal/errors"
)

const (
	wordTokenizerName = "word_tokenizer"
	textAnalyzerName  = "text_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(wordTokenizerName, wordTokenizerConstructor)
}

// LexicalIndex is an in-memory BM25 index over the chunk texts. It is
// rebuilt from the metadata arrays whenever they change; nothing is
// persisted, so it can never drift from the source of truth.
type LexicalIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	count int
}

type lexicalDoc struct {
	Content string `json:"content"`
}

// NewLexicalIndex creates an empty in-memory index.
func NewLexicalIndex() (*LexicalIndex, error) {
	idx, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	return &LexicalIndex{index: idx}, nil
}

func newMemIndex() (bleve.Index, error) {
	m, err := createIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	return idx, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(textAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     wordTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	im.DefaultAnalyzer = textAnalyzerName
	return im, nil
}

// docID formats a chunk ordinal as a zero-padded document ID. Padding
// makes lexicographic ID order equal ordinal order, which bleve uses to
// break score ties deterministically.
func docID(ordinal int) string {
	return fmt.Sprintf("%08d", ordinal)
}

// Rebuild replaces the index contents with the given chunk texts, in
// ordinal order.
func (l *LexicalIndex) Rebuild(ctx context.Context, texts []string) error {
	idx, err := newMemIndex()
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for i, text := range texts {
		if err := batch.Index(docID(i), lexicalDoc{Content: text}); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternal, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index != nil {
		_ = l.index.Close()
	}
	l.index = idx
	l.count = len(texts)
	return nil
}

// Count returns the number of indexed chunks.
func (l *LexicalIndex) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// TopK returns the best-matching chunk ordinals for the query, scored
// by BM25. Ties are broken by ascending ordinal.
func (l *LexicalIndex) TopK(ctx context.Context, query string, k int) ([]Hit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if strings.TrimSpace(query) == "" || l.count == 0 || k <= 0 {
		return nil, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")

	req := bleve.NewSearchRequest(mq)
	req.Size = k

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		ord, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{Ordinal: ord, Score: h.Score})
	}
	return hits, nil
}

// Close releases the underlying index.
func (l *LexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index == nil {
		return nil
	}
	err := l.index.Close()
	l.index = nil
	l.count = 0
	return err
}

func wordTokenizerConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	return wordTokenizer{}, nil
}

// wordTokenizer splits input into Unicode letter/digit runs. Offsets
// are byte positions into the original input.
type wordTokenizer struct{}

func (wordTokenizer) Tokenize(input []byte) analysis.TokenStream {
	locs := wordRe.FindAllIndex(input, -1)
	stream := make(analysis.TokenStream, 0, len(locs))
	for i, loc := range locs {
		stream = append(stream, &analysis.Token{
			Term:     input[loc[0]:loc[1]],
			Start:    loc[0],
			End:      loc[1],
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}

// Package rag wires retrieval, prompting and generation into the
// question answering service.
package rag

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/soberano/soberano/internal/cache"
	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/extract"
	"github.com/soberano/soberano/internal/history"
	"github.com/soberano/soberano/internal/prompt"
	"github.com/soberano/soberano/internal/search"
	"github.com/soberano/soberano/internal/store"
)

// citationPreviewLen caps the cited text returned to the client.
const citationPreviewLen = 400

// Answerer generates the final answer from a rendered prompt. A
// non-negative temperature overrides the configured sampling
// temperature for that call.
type Answerer interface {
	Answer(ctx context.Context, promptText, question string, temperature float64) (string, error)
}

// Citation points an answer back at the chunk it came from.
type Citation struct {
	ID     int     `json:"id"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Text   string  `json:"text"`
}

// Answer is the service's response to one question.
type Answer struct {
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Grounded       bool       `json:"grounded"`
	Cached         bool       `json:"cached"`
	ExchangeID     string     `json:"exchange_id"`
	ConversationID string     `json:"conversation_id"`
}

// Search modes. Single requires a source filter; multi searches the
// whole corpus with per-source diversification. Empty infers the mode
// from whether a source filter is present.
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// AskRequest is one question, optionally scoped to a document and a
// conversation.
type AskRequest struct {
	Question       string `json:"question"`
	Source         string `json:"source,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Mode selects single-document vs corpus-wide retrieval. Empty
	// infers it from Source.
	Mode string `json:"mode,omitempty"`
	// Temperature overrides the configured sampling temperature for
	// this question when set.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Service owns the full ask/ingest/delete lifecycle.
type Service struct {
	store     *store.Store
	extractor *extract.Extractor
	retriever *search.Retriever
	budgeter  *prompt.Budgeter
	generator Answerer
	answers   *cache.Cache[Answer]
	history   *history.Store
}

// New wires a Service. history may be nil to disable persistence of
// exchanges (some CLI paths run without it).
func New(
	st *store.Store,
	ex *extract.Extractor,
	rt *search.Retriever,
	bd *prompt.Budgeter,
	gen Answerer,
	answers *cache.Cache[Answer],
	hist *history.Store,
) *Service {
	return &Service{
		store:     st,
		extractor: ex,
		retriever: rt,
		budgeter:  bd,
		generator: gen,
		answers:   answers,
		history:   hist,
	}
}

// Ask answers a question from the indexed documents.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "question is empty", nil)
	}

	switch req.Mode {
	case "", ModeMulti:
	case ModeSingle:
		if req.Source == "" {
			return nil, apperrors.New(apperrors.ErrCodeInvalidInput,
				"mode \"single\" requires a source filter", nil)
		}
	default:
		return nil, apperrors.Newf(apperrors.ErrCodeInvalidInput,
			"unknown mode %q", req.Mode)
	}

	temperature := -1.0
	if req.Temperature != nil {
		if *req.Temperature < 0 || *req.Temperature > 2 {
			return nil, apperrors.Newf(apperrors.ErrCodeInvalidInput,
				"temperature must be in [0, 2], got %v", *req.Temperature)
		}
		temperature = *req.Temperature
	}

	// Custom temperatures change the answer, so they skip the cache in
	// both directions.
	cacheable := req.Temperature == nil

	key := cache.Key(question, req.Source)
	if cacheable {
		if cached, ok := s.answers.Get(key); ok {
			cached.Cached = true
			cached.ConversationID = req.ConversationID
			s.record(ctx, &cached, question)
			return &cached, nil
		}
	}

	start := time.Now()
	res, err := s.retriever.Retrieve(ctx, question, req.Source)
	if err != nil {
		return nil, err
	}
	switch res.Outcome {
	case search.OutcomeEmptyIndex:
		return nil, apperrors.New(apperrors.ErrCodeNoIndex,
			"no documents ingested yet", nil)
	case search.OutcomeDocumentNotFound:
		return nil, apperrors.Newf(apperrors.ErrCodeDocumentNotFound,
			"document %q not in index", req.Source)
	}
	if len(res.Passages) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeNoResults,
			"no relevant passages found", nil)
	}

	promptText, used, promptTokens, err := s.budgeter.Build(ctx, question, res.Passages)
	if err != nil {
		return nil, err
	}

	text, err := s.generator.Answer(ctx, promptText, question, temperature)
	if err != nil {
		return nil, err
	}

	answer := &Answer{
		Answer:         text,
		Citations:      citations(used),
		Grounded:       !strings.Contains(text, prompt.NotFoundAnswer),
		ConversationID: req.ConversationID,
	}
	s.record(ctx, answer, question)
	if cacheable {
		s.answers.Set(key, *answer)
	}

	slog.Info("question answered",
		"passages", len(res.Passages), "cited", len(used),
		"prompt_tokens", promptTokens, "grounded", answer.Grounded,
		"source_filter", req.Source, "elapsed", time.Since(start))
	return answer, nil
}

func citations(passages []search.Passage) []Citation {
	out := make([]Citation, 0, len(passages))
	for _, p := range passages {
		text := p.Text
		if len(text) > citationPreviewLen {
			cut := citationPreviewLen
			// Back off to a rune boundary so the preview stays valid UTF-8.
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		out = append(out, Citation{
			ID:     p.Ordinal,
			Score:  p.Score,
			Source: p.Source,
			Page:   p.Page,
			Text:   text,
		})
	}
	return out
}

// record persists the exchange, assigning IDs to the answer.
func (s *Service) record(ctx context.Context, a *Answer, question string) {
	if s.history == nil {
		return
	}
	seen := map[string]bool{}
	var sources []string
	for _, c := range a.Citations {
		if !seen[c.Source] {
			seen[c.Source] = true
			sources = append(sources, c.Source)
		}
	}
	ex := &history.Exchange{
		ConversationID: a.ConversationID,
		Question:       question,
		Answer:         a.Answer,
		Sources:        sources,
		Cached:         a.Cached,
	}
	if err := s.history.RecordExchange(ctx, ex); err != nil {
		slog.Warn("recording exchange failed", "error", err)
		return
	}
	a.ExchangeID = ex.ID
	a.ConversationID = ex.ConversationID
}

// IngestFiles extracts the given files concurrently and indexes them
// one source at a time. Extraction is CPU and subprocess bound, so it
// parallelizes well; indexing mutates shared state and stays serial.
func (s *Service) IngestFiles(ctx context.Context, paths []string) ([]store.IngestResult, error) {
	if len(paths) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "no files given", nil)
	}

	chunksByFile := make([][]store.Chunk, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(8, runtime.NumCPU()))
	for i, path := range paths {
		g.Go(func() error {
			chunks, err := s.extractor.File(gctx, path)
			if err != nil {
				return err
			}
			chunksByFile[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]store.IngestResult, 0, len(paths))
	for _, chunks := range chunksByFile {
		res, err := s.store.Ingest(ctx, chunks)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}

	s.answers.Purge()
	return results, nil
}

// IngestDir ingests every supported file directly under dir.
func (s *Service) IngestDir(ctx context.Context, dir string) ([]store.IngestResult, error) {
	paths, err := extract.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, apperrors.Newf(apperrors.ErrCodeEmptyDocument,
			"no supported documents in %s", dir)
	}
	return s.IngestFiles(ctx, paths)
}

// Delete removes a document from the index and drops cached answers.
func (s *Service) Delete(ctx context.Context, source string) (int, error) {
	removed, err := s.store.DeleteSource(ctx, source)
	if err != nil {
		return 0, err
	}
	s.answers.Purge()
	return removed, nil
}

// Feedback records a verdict on an earlier exchange.
func (s *Service) Feedback(ctx context.Context, exchangeID string, verdict history.Verdict, comment string) error {
	if s.history == nil {
		return apperrors.New(apperrors.ErrCodeConfigInvalid, "history store disabled", nil)
	}
	return s.history.AddFeedback(ctx, exchangeID, verdict, comment)
}

// Status describes the service state.
type Status struct {
	Chunks         int                `json:"chunks"`
	Documents      []store.SourceInfo `json:"documents"`
	EmbeddingModel string             `json:"embedding_model"`
	Cache          cache.Stats        `json:"cache"`
}

// Status reports index counts and cache statistics.
func (s *Service) Status(ctx context.Context) *Status {
	return &Status{
		Chunks:         s.store.Len(),
		Documents:      s.store.Sources(),
		EmbeddingModel: s.store.ModelID(),
		Cache:          s.answers.Stats(),
	}
}

// Documents lists the indexed sources.
func (s *Service) Documents() []store.SourceInfo {
	return s.store.Sources()
}

// History exposes the underlying history store, nil when disabled.
func (s *Service) History() *history.Store {
	return s.history
}

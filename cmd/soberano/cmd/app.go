package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/soberano/soberano/internal/cache"
	"github.com/soberano/soberano/internal/config"
	"github.com/soberano/soberano/internal/embed"
	"github.com/soberano/soberano/internal/extract"
	"github.com/soberano/soberano/internal/gen"
	"github.com/soberano/soberano/internal/history"
	"github.com/soberano/soberano/internal/prompt"
	"github.com/soberano/soberano/internal/rag"
	"github.com/soberano/soberano/internal/search"
	"github.com/soberano/soberano/internal/segment"
	"github.com/soberano/soberano/internal/store"
)

// app holds the wired service stack for one CLI invocation.
type app struct {
	cfg   *config.Config
	store *store.Store
	hist  *history.Store
	svc   *rag.Service
}

// newApp wires the full pipeline from configuration: encoder, store,
// retriever, reranker, prompt budgeter, generator, cache and history.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	encoder := embed.NewCachedEncoder(
		embed.NewOpenAIEncoder(cfg.Embedding.BaseURL, cfg.Embedding.Model,
			embed.WithBatchSize(cfg.Embedding.BatchSize),
			embed.WithTimeout(cfg.Embedding.Timeout),
			embed.WithAPIKey(cfg.Embedding.APIKey),
			embed.WithDimensions(cfg.Embedding.Dimensions)),
		cfg.Embedding.CacheSize,
	)

	st, err := store.Open(ctx, cfg.Paths.StoreDir, encoder)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var reranker search.Reranker
	if cfg.Reranker.Enabled {
		reranker = search.NewHTTPReranker(cfg.Reranker.Endpoint, cfg.Reranker.Model, cfg.Reranker.Timeout,
			search.WithMaxCandidates(cfg.Search.MaxRerankCandidates))
	}
	retriever := search.NewRetriever(st, encoder, reranker, cfg.Search.TopK)

	counter := prompt.FallbackCounter{
		Exact: gen.NewLlamaTokenizer(cfg.Generator.BaseURL, cfg.Generator.Timeout),
	}
	budgeter := prompt.NewBudgeter(counter, cfg.PromptBudget())

	generator := gen.New(gen.Config{
		BaseURL:       cfg.Generator.BaseURL,
		APIKey:        cfg.Generator.APIKey,
		Model:         cfg.Generator.Model,
		ContextWindow: cfg.Generator.ContextWindow,
		MaxTokens:     cfg.Generator.MaxTokens,
		Temperature:   float64(cfg.Generator.Temperature),
		Timeout:       cfg.Generator.Timeout,
	}, counter)

	hist, err := history.Open(filepath.Join(cfg.Paths.DataDir, "history.db"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}

	svc := rag.New(
		st,
		extract.New(segment.New(cfg.Chunking.MaxChars, cfg.Chunking.OverlapSentences)),
		retriever,
		budgeter,
		generator,
		cache.New[rag.Answer](cfg.Cache.MaxEntries, cfg.Cache.TTL),
		hist,
	)

	return &app{cfg: cfg, store: st, hist: hist, svc: svc}, nil
}

func (a *app) close() {
	if a.hist != nil {
		_ = a.hist.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

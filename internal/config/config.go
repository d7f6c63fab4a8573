// Package config loads and validates the soberano configuration from
// YAML, applying environment variable overrides (SOBERANO_*).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/soberano/soberano/internal/errors"
)

// Config is the complete soberano configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	Generator GeneratorConfig `yaml:"generator"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// DataDir is the root data directory. Docs, store, history, and logs
	// live beneath it unless overridden.
	DataDir  string `yaml:"data_dir"`
	DocsDir  string `yaml:"docs_dir"`
	StoreDir string `yaml:"store_dir"`
}

// ChunkingConfig configures the text segmenter.
type ChunkingConfig struct {
	// MaxChars is the maximum chunk size in characters.
	MaxChars int `yaml:"max_chars"`
	// OverlapSentences is the number of trailing sentences re-seeded into
	// the next chunk.
	OverlapSentences int `yaml:"overlap_sentences"`
}

// EmbeddingConfig configures the embedding encoder.
type EmbeddingConfig struct {
	// BaseURL is the OpenAI-compatible embeddings endpoint.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// Model is the embedding model identifier. Models containing "e5" or
	// "bge" get asymmetric query/passage prefixes.
	Model string `yaml:"model"`
	// Dimensions pins the expected vector size; 0 auto-detects from the
	// first response.
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// TopK is the default number of passages returned.
	TopK int `yaml:"top_k"`
	// MaxRerankCandidates caps the pool handed to the cross-encoder.
	MaxRerankCandidates int `yaml:"max_rerank_candidates"`
}

// RerankerConfig configures the cross-encoder reranker service.
type RerankerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GeneratorConfig configures the language model.
type GeneratorConfig struct {
	// BaseURL is the root of the llama-server instance. The
	// OpenAI-compatible API is served under /v1, the tokenizer under
	// /tokenize.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// ContextWindow is the model context length in tokens.
	ContextWindow int `yaml:"context_window"`
	// MaxTokens is the configured cap on generated tokens.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature is the default sampling temperature. A negative value
	// enables the auto heuristic.
	Temperature float32 `yaml:"temperature"`
	// PromptBudgetFraction is the share of the context window reserved
	// for the prompt; the rest is left for the answer.
	PromptBudgetFraction float64       `yaml:"prompt_budget_fraction"`
	Timeout              time.Duration `yaml:"timeout"`
}

// CacheConfig configures the query-answer cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RateLimit is requests per second per client; RateBurst is the
	// bucket size.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the default configuration rooted at dataDir.
func Default(dataDir string) *Config {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".soberano")
	}
	return &Config{
		Paths: PathsConfig{
			DataDir:  dataDir,
			DocsDir:  filepath.Join(dataDir, "docs"),
			StoreDir: filepath.Join(dataDir, "store"),
		},
		Chunking: ChunkingConfig{
			MaxChars:         900,
			OverlapSentences: 2,
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "http://localhost:11434/v1",
			APIKey:    "none",
			Model:     "intfloat/multilingual-e5-base",
			BatchSize: 32,
			Timeout:   60 * time.Second,
			CacheSize: 1000,
		},
		Search: SearchConfig{
			TopK:                4,
			MaxRerankCandidates: 64,
		},
		Reranker: RerankerConfig{
			Enabled:  true,
			Endpoint: "http://localhost:9659",
			Model:    "jina-reranker-v2-base-multilingual",
			Timeout:  30 * time.Second,
		},
		Generator: GeneratorConfig{
			BaseURL:              "http://localhost:8081",
			APIKey:               "none",
			Model:                "mistral-7b-instruct",
			ContextWindow:        4096,
			MaxTokens:            256,
			Temperature:          -1, // auto
			PromptBudgetFraction: 0.65,
			Timeout:              120 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries: 100,
			TTL:        5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:      ":8080",
			RateLimit: 5,
			RateBurst: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "logs", "soberano.log"),
		},
	}
}

// Load reads the configuration from path, falling back to defaults when
// the file does not exist, then applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default("")

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file is fine; defaults plus env apply.
		case err != nil:
			return nil, apperrors.Wrap(apperrors.ErrCodeConfigNotFound, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCodeConfigInvalid, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.deriveDirs()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from SOBERANO_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("SOBERANO_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
		c.Paths.DocsDir = ""
		c.Paths.StoreDir = ""
	}
	if v := os.Getenv("SOBERANO_EMBEDDING_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("SOBERANO_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("SOBERANO_GENERATOR_URL"); v != "" {
		c.Generator.BaseURL = v
	}
	if v := os.Getenv("SOBERANO_GENERATOR_MODEL"); v != "" {
		c.Generator.Model = v
	}
	if v := os.Getenv("SOBERANO_RERANKER_URL"); v != "" {
		c.Reranker.Endpoint = v
	}
	if v := os.Getenv("SOBERANO_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SOBERANO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SOBERANO_CONTEXT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Generator.ContextWindow = n
		}
	}
}

// deriveDirs fills docs/store paths from the data dir when unset.
func (c *Config) deriveDirs() {
	if c.Paths.DocsDir == "" {
		c.Paths.DocsDir = filepath.Join(c.Paths.DataDir, "docs")
	}
	if c.Paths.StoreDir == "" {
		c.Paths.StoreDir = filepath.Join(c.Paths.DataDir, "store")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.Paths.DataDir, "logs", "soberano.log")
	}
}

// EnsureDirs creates the data directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.DocsDir, c.Paths.StoreDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Chunking.MaxChars < 100 {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, "chunking.max_chars must be >= 100, got %d", c.Chunking.MaxChars)
	}
	if c.Chunking.OverlapSentences < 0 {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, "chunking.overlap_sentences must be >= 0, got %d", c.Chunking.OverlapSentences)
	}
	if c.Embedding.Model == "" {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, "embedding.model must be set")
	}
	if c.Search.TopK <= 0 {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, "search.top_k must be > 0, got %d", c.Search.TopK)
	}
	if c.Search.MaxRerankCandidates <= 0 {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, "search.max_rerank_candidates must be > 0, got %d", c.Search.MaxRerankCandidates)
	}
	if c.Generator.ContextWindow <= 0 {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, "generator.context_window must be > 0, got %d", c.Generator.ContextWindow)
	}
	if f := c.Generator.PromptBudgetFraction; f <= 0 || f >= 1 {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, "generator.prompt_budget_fraction must be in (0,1), got %v", f)
	}
	if c.Cache.MaxEntries <= 0 {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, "cache.max_entries must be > 0, got %d", c.Cache.MaxEntries)
	}
	return nil
}

// PromptBudget returns the token budget for the assembled prompt.
func (c *Config) PromptBudget() int {
	return int(float64(c.Generator.ContextWindow) * c.Generator.PromptBudgetFraction)
}

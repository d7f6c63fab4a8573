package embed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/soberano/soberano/internal/errors"
)

// OpenAIEncoder generates embeddings through an OpenAI-compatible
// /v1/embeddings endpoint. Both Ollama and llama-server expose one, so
// everything stays on the local machine.
type OpenAIEncoder struct {
	client    *openai.Client
	modelID   string
	profile   Profile
	batchSize int
	timeout    time.Duration
	apiKey     string
	expectDims int

	mu   sync.Mutex
	dims int
}

// Option configures an OpenAIEncoder.
type Option func(*OpenAIEncoder)

// WithBatchSize overrides the per-request batch size.
func WithBatchSize(n int) Option {
	return func(e *OpenAIEncoder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *OpenAIEncoder) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithAPIKey sets the bearer token sent to the endpoint. Local servers
// ignore it, so it defaults to a placeholder.
func WithAPIKey(key string) Option {
	return func(e *OpenAIEncoder) {
		if key != "" {
			e.apiKey = key
		}
	}
}

// WithDimensions declares the model's vector size up front. Responses
// with a different dimension are rejected instead of poisoning the
// index with mixed-size vectors.
func WithDimensions(n int) Option {
	return func(e *OpenAIEncoder) {
		if n > 0 {
			e.expectDims = n
		}
	}
}

// NewOpenAIEncoder creates an encoder against baseURL (e.g.
// http://localhost:11434/v1).
func NewOpenAIEncoder(baseURL, modelID string, opts ...Option) *OpenAIEncoder {
	e := &OpenAIEncoder{
		modelID:   modelID,
		profile:   ResolveProfile(modelID),
		batchSize: DefaultBatchSize,
		timeout:   DefaultTimeout,
		apiKey:    "local",
	}
	for _, opt := range opts {
		opt(e)
	}
	cfg := openai.DefaultConfig(e.apiKey)
	cfg.BaseURL = baseURL
	e.client = openai.NewClientWithConfig(cfg)
	return e
}

var _ Encoder = (*OpenAIEncoder)(nil)

// EmbedDocuments embeds texts in order, batching requests.
func (e *OpenAIEncoder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			batch = append(batch, e.profile.ForDocument(t))
		}
		vecs, err := e.embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds one query with the query-side prefix.
func (e *OpenAIEncoder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{e.profile.ForQuery(text)})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEncoder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.modelID),
		Input: inputs,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeEncoderUnavailable,
			"embedding request failed", err).WithDetail("model", e.modelID)
	}
	if len(resp.Data) != len(inputs) {
		return nil, apperrors.Newf(apperrors.ErrCodeEncoderUnavailable,
			"embedding endpoint returned %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		// The index field is endpoint-supplied; never trust it blindly.
		if d.Index < 0 || d.Index >= len(inputs) || out[d.Index] != nil {
			return nil, apperrors.Newf(apperrors.ErrCodeEncoderUnavailable,
				"embedding endpoint returned invalid result index %d for %d inputs", d.Index, len(inputs))
		}
		if e.expectDims > 0 && len(d.Embedding) != e.expectDims {
			return nil, apperrors.Newf(apperrors.ErrCodeDimensionMismatch,
				"model %s returned %d dimensions, configured for %d",
				e.modelID, len(d.Embedding), e.expectDims)
		}
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		Normalize(v)
		out[d.Index] = v
	}
	e.noteDims(out)
	return out, nil
}

func (e *OpenAIEncoder) noteDims(vecs [][]float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims == 0 && len(vecs) > 0 {
		e.dims = len(vecs[0])
		slog.Debug("detected embedding dimensions", "model", e.modelID, "dims", e.dims)
	}
}

// Dimensions returns the detected vector size, falling back to the
// configured one before the first call and 0 when neither is known.
func (e *OpenAIEncoder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims != 0 {
		return e.dims
	}
	return e.expectDims
}

// ModelID returns the embedding model identifier.
func (e *OpenAIEncoder) ModelID() string {
	return e.modelID
}

// Available embeds a probe string to verify the endpoint responds.
func (e *OpenAIEncoder) Available(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "ping")
	return err
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (e *OpenAIEncoder) Close() {}

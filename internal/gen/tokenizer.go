package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	apperrors "github.com/soberano/soberano/internal/errors"
)

// LlamaTokenizer counts tokens exactly through llama-server's
// POST /tokenize endpoint, which runs the same tokenizer as the model
// that will consume the prompt.
type LlamaTokenizer struct {
	baseURL string
	client  *http.Client
}

// NewLlamaTokenizer creates a tokenizer client against the generator's
// base URL (e.g. http://localhost:8081).
func NewLlamaTokenizer(baseURL string, timeout time.Duration) *LlamaTokenizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LlamaTokenizer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type tokenizeRequest struct {
	Content string `json:"content"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// Count returns the number of model tokens in text.
func (t *LlamaTokenizer) Count(ctx context.Context, text string) (int, error) {
	payload, err := json.Marshal(tokenizeRequest{Content: text})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/tokenize", bytes.NewReader(payload))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, apperrors.New(apperrors.ErrCodeGeneratorUnavailable,
			"tokenize request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return 0, apperrors.New(apperrors.ErrCodeGeneratorUnavailable,
			"reading tokenize response failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.Newf(apperrors.ErrCodeGeneratorUnavailable,
			"tokenize returned %d", resp.StatusCode)
	}

	var out tokenizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, apperrors.New(apperrors.ErrCodeGeneratorUnavailable,
			"decoding tokenize response failed", err)
	}
	return len(out.Tokens), nil
}

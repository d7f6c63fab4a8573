package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	apperrors "github.com/soberano/soberano/internal/errors"
)

// DefaultMaxCandidates caps how many passages go through the
// cross-encoder. Scoring is quadratic-attention work per pair; beyond
// this the latency cost outweighs the ordering gain.
const DefaultMaxCandidates = 64

// Reranker reorders candidate passages by relevance to the query.
type Reranker interface {
	// Rerank returns the passages reordered best-first with rerank
	// scores filled in. Passages beyond the implementation's candidate
	// cap keep their retrieval order behind the reranked head.
	Rerank(ctx context.Context, query string, passages []Passage) ([]Passage, error)

	// Available checks that the reranker can serve requests.
	Available(ctx context.Context) error
}

// NoOpReranker keeps the retrieval order. Used when no cross-encoder
// endpoint is configured or reachable.
type NoOpReranker struct{}

func (NoOpReranker) Rerank(_ context.Context, _ string, passages []Passage) ([]Passage, error) {
	return passages, nil
}

func (NoOpReranker) Available(_ context.Context) error { return nil }

// HTTPReranker scores query/passage pairs through a llama-server
// /v1/rerank endpoint running a cross-encoder model.
type HTTPReranker struct {
	baseURL       string
	model         string
	maxCandidates int
	client        *http.Client
}

// RerankerOption configures an HTTPReranker.
type RerankerOption func(*HTTPReranker)

// WithMaxCandidates overrides the candidate cap.
func WithMaxCandidates(n int) RerankerOption {
	return func(r *HTTPReranker) {
		if n > 0 {
			r.maxCandidates = n
		}
	}
}

// NewHTTPReranker creates a reranker against baseURL (e.g.
// http://localhost:9659).
func NewHTTPReranker(baseURL, model string, timeout time.Duration, opts ...RerankerOption) *HTTPReranker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &HTTPReranker{
		baseURL:       baseURL,
		model:         model,
		maxCandidates: DefaultMaxCandidates,
		client:        &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Reranker = (*HTTPReranker)(nil)

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank sends up to the configured candidate cap for scoring and
// reorders those by the returned relevance. The tail past the cap
// keeps its retrieval order behind the reranked head.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, passages []Passage) ([]Passage, error) {
	if len(passages) == 0 {
		return passages, nil
	}

	head := passages
	var tail []Passage
	if len(head) > r.maxCandidates {
		tail = head[r.maxCandidates:]
		head = head[:r.maxCandidates]
	}

	docs := make([]string, len(head))
	for i, p := range head {
		docs[i] = p.Text
	}

	resp, err := r.post(ctx, rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: docs,
		TopN:      len(docs),
	})
	if err != nil {
		return nil, err
	}

	reranked := make([]Passage, 0, len(head))
	seen := make(map[int]bool, len(resp.Results))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(head) || seen[res.Index] {
			continue
		}
		seen[res.Index] = true
		p := head[res.Index]
		p.Score = res.RelevanceScore
		reranked = append(reranked, p)
	}
	// Endpoints are not required to return every document.
	for i, p := range head {
		if !seen[i] {
			reranked = append(reranked, p)
		}
	}
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })

	return append(reranked, tail...), nil
}

func (r *HTTPReranker) post(ctx context.Context, reqBody rerankRequest) (*rerankResponse, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/v1/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := r.client.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeEncoderUnavailable,
			"reranker request failed", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeEncoderUnavailable,
			"reading reranker response failed", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.ErrCodeEncoderUnavailable,
			"reranker returned %d: %s", httpResp.StatusCode, truncate(string(body), 200))
	}

	var out rerankResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeEncoderUnavailable,
			"decoding reranker response failed", err)
	}
	return &out, nil
}

// Available probes the endpoint's health route.
func (r *HTTPReranker) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeEncoderUnavailable, "reranker unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.ErrCodeEncoderUnavailable,
			"reranker health returned %d", resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}

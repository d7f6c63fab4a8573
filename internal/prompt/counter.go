package prompt

import (
	"context"
	"log/slog"
	"strings"
)

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(ctx context.Context, text string) (int, error)
}

// HeuristicCount estimates tokens from whitespace-separated words.
// Subword tokenizers produce roughly 1.4 tokens per word on mixed
// Spanish/English prose, hence the 0.7 divisor. Estimates err high,
// which is the safe direction for budget checks.
func HeuristicCount(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words)/0.7) + 1
}

// HeuristicCounter counts with HeuristicCount only. Used when no
// tokenizer endpoint is configured.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(_ context.Context, text string) (int, error) {
	return HeuristicCount(text), nil
}

// FallbackCounter tries an exact counter first and falls back to the
// heuristic when it fails, so a tokenizer outage never blocks
// answering.
type FallbackCounter struct {
	Exact TokenCounter
}

func (f FallbackCounter) Count(ctx context.Context, text string) (int, error) {
	if f.Exact != nil {
		n, err := f.Exact.Count(ctx, text)
		if err == nil {
			return n, nil
		}
		slog.Warn("tokenizer unavailable, using heuristic count", "error", err)
	}
	return HeuristicCount(text), nil
}

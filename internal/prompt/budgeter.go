package prompt

import (
	"context"
	"log/slog"

	"github.com/soberano/soberano/internal/search"
)

// Budgeter packs ranked passages into the prompt under a token budget.
type Budgeter struct {
	counter TokenCounter
	budget  int
}

// NewBudgeter creates a budgeter. budget is the maximum prompt size in
// tokens, normally 65% of the model context window.
func NewBudgeter(counter TokenCounter, budget int) *Budgeter {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &Budgeter{counter: counter, budget: budget}
}

// Build renders the largest prompt prefix that fits the budget.
// Passages are taken in rank order; the first one that would push the
// rendered prompt over the budget stops the packing, so the context is
// always a prefix of the ranking. Returns the prompt, the passages
// that made it in, and the measured token count.
func (b *Budgeter) Build(ctx context.Context, question string, passages []search.Passage) (string, []search.Passage, int, error) {
	var contexts []string
	var used []search.Passage

	for _, p := range passages {
		probe := Render(question, append(contexts, p.Text))
		n, err := b.counter.Count(ctx, probe)
		if err != nil {
			return "", nil, 0, err
		}
		if n > b.budget {
			break
		}
		contexts = append(contexts, p.Text)
		used = append(used, p)
	}

	final := Render(question, contexts)
	tokens, err := b.counter.Count(ctx, final)
	if err != nil {
		return "", nil, 0, err
	}

	if len(used) < len(passages) {
		slog.Debug("prompt budget clipped passages",
			"kept", len(used), "retrieved", len(passages), "tokens", tokens, "budget", b.budget)
	}
	return final, used, tokens, nil
}

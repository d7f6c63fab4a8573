// Package gen produces answers with a local LLM behind an
// OpenAI-compatible completion endpoint (llama-server).
package gen

import (
	"context"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/prompt"
)

const (
	// specialTokenMargin reserves room for BOS/EOS and template tokens
	// the tokenizer count may not include.
	specialTokenMargin = 16

	// minAnswerTokens is the floor for the output allowance. The model
	// always gets at least a few tokens to say something.
	minAnswerTokens = 8

	// stopSequence closes a Mistral-Instruct turn.
	stopSequence = "</s>"
)

// Config holds generator settings.
type Config struct {
	BaseURL string
	// APIKey is the bearer token for the endpoint. Local servers ignore
	// it; empty falls back to a placeholder.
	APIKey        string
	Model         string
	ContextWindow int
	MaxTokens     int
	// Temperature below zero means auto per question.
	Temperature float64
	Timeout     time.Duration
}

// Generator calls the completion endpoint with context-window-safe
// output limits.
type Generator struct {
	client  *openai.Client
	cfg     Config
	counter prompt.TokenCounter
}

// New creates a Generator. counter measures prompts for the output
// allowance; pass the exact tokenizer wrapped in a fallback.
func New(cfg Config, counter prompt.TokenCounter) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if counter == nil {
		counter = prompt.HeuristicCounter{}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "local"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL + "/v1"
	return &Generator{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		counter: counter,
	}
}

// maxNewTokens computes how many output tokens fit after the prompt.
// Never zero: a cramped context still yields a short answer rather
// than an error.
func (g *Generator) maxNewTokens(promptTokens int) int {
	room := g.cfg.ContextWindow - promptTokens - specialTokenMargin
	if room < minAnswerTokens {
		return minAnswerTokens
	}
	return min(g.cfg.MaxTokens, room)
}

// Answer completes the prompt and returns the trimmed text. question
// is used only to resolve the auto temperature. A non-negative
// temperature overrides the configured one for this call.
func (g *Generator) Answer(ctx context.Context, promptText, question string, temperature float64) (string, error) {
	promptTokens, err := g.counter.Count(ctx, promptText)
	if err != nil {
		return "", err
	}
	maxNew := g.maxNewTokens(promptTokens)
	configured := g.cfg.Temperature
	if temperature >= 0 {
		configured = temperature
	}
	temp := ResolveTemperature(configured, question)

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       g.cfg.Model,
		Prompt:      promptText,
		MaxTokens:   maxNew,
		Temperature: float32(temp),
		Stop:        []string{stopSequence},
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.New(apperrors.ErrCodeModelTimeout,
				"generation timed out", err)
		}
		return "", apperrors.New(apperrors.ErrCodeGeneratorUnavailable,
			"completion request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.ErrCodeGeneratorUnavailable,
			"completion returned no choices", nil)
	}

	answer := strings.TrimSpace(resp.Choices[0].Text)
	slog.Debug("generation complete",
		"prompt_tokens", promptTokens, "max_new", maxNew,
		"temperature", temp, "elapsed", time.Since(start))
	return answer, nil
}

// Available checks that the completion endpoint responds.
func (g *Generator) Available(ctx context.Context) error {
	_, err := g.client.ListModels(ctx)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeGeneratorUnavailable,
			"generator unreachable", err)
	}
	return nil
}

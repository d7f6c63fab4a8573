package gen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/prompt"
)

func TestResolveTemperature(t *testing.T) {
	tests := []struct {
		name       string
		configured float64
		question   string
		want       float64
	}{
		{"configured wins", 0.5, "resume el documento", 0.5},
		{"zero is a valid configured value", 0, "resume el documento", 0},
		{"auto factual", -1, "¿Cuánto es la renta mensual?", FactualTemperature},
		{"auto creative spanish", -1, "Resume el contrato en tres puntos", CreativeTemperature},
		{"auto creative english", -1, "Summarize the policy", CreativeTemperature},
		{"auto explain", -1, "Explica la clausula de renovación", CreativeTemperature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveTemperature(tt.configured, tt.question))
		})
	}
}

type fixedCounter struct{ n int }

func (f fixedCounter) Count(_ context.Context, _ string) (int, error) { return f.n, nil }

func TestMaxNewTokens(t *testing.T) {
	g := New(Config{ContextWindow: 4096, MaxTokens: 256}, nil)

	// Plenty of room: configured max wins.
	assert.Equal(t, 256, g.maxNewTokens(1000))

	// Tight: whatever room remains after the margin.
	assert.Equal(t, 80, g.maxNewTokens(4000))

	// Overfull prompt still leaves the floor.
	assert.Equal(t, minAnswerTokens, g.maxNewTokens(4095))
	assert.Equal(t, minAnswerTokens, g.maxNewTokens(9999))
}

func TestGeneratorAnswer(t *testing.T) {
	var gotReq struct {
		Model       string   `json:"model"`
		Prompt      string   `json:"prompt"`
		MaxTokens   int      `json:"max_tokens"`
		Temperature float64  `json:"temperature"`
		Stop        []string `json:"stop"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"text":"  La renta es de mil euros. "}]}`))
	}))
	defer srv.Close()

	g := New(Config{
		BaseURL:       srv.URL,
		Model:         "mistral-7b-instruct",
		ContextWindow: 4096,
		MaxTokens:     256,
		Temperature:   -1,
	}, fixedCounter{n: 100})

	answer, err := g.Answer(context.Background(), "<s>[INST] ... [/INST]", "¿Cuánto es la renta?", -1)
	require.NoError(t, err)
	assert.Equal(t, "La renta es de mil euros.", answer)

	assert.Equal(t, "mistral-7b-instruct", gotReq.Model)
	assert.Equal(t, 256, gotReq.MaxTokens)
	assert.InDelta(t, FactualTemperature, gotReq.Temperature, 1e-6)
	assert.Equal(t, []string{stopSequence}, gotReq.Stop)

	// A per-call temperature beats both the config and the auto mode.
	_, err = g.Answer(context.Background(), "<s>[INST] ... [/INST]", "¿Cuánto es la renta?", 0.9)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, gotReq.Temperature, 1e-6)
}

func TestGeneratorUnavailable(t *testing.T) {
	g := New(Config{
		BaseURL:       "http://127.0.0.1:1",
		Model:         "m",
		ContextWindow: 4096,
		MaxTokens:     64,
		Timeout:       500 * time.Millisecond,
	}, fixedCounter{n: 10})

	_, err := g.Answer(context.Background(), "p", "q", -1)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeGeneratorUnavailable, apperrors.CodeOf(err))
}

func TestLlamaTokenizerCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokenize", r.URL.Path)
		var req struct {
			Content string `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hola mundo", req.Content)
		w.Write([]byte(`{"tokens":[1,523,9834]}`))
	}))
	defer srv.Close()

	tk := NewLlamaTokenizer(srv.URL, time.Second)
	n, err := tk.Count(context.Background(), "hola mundo")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLlamaTokenizerFallsBackThroughCounter(t *testing.T) {
	tk := NewLlamaTokenizer("http://127.0.0.1:1", 200*time.Millisecond)
	counter := prompt.FallbackCounter{Exact: tk}

	n, err := counter.Count(context.Background(), "uno dos tres")
	require.NoError(t, err)
	assert.Equal(t, prompt.HeuristicCount("uno dos tres"), n)
}

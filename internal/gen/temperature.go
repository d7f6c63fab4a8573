package gen

import "strings"

// Sampling presets. Factual lookups want near-greedy decoding so the
// answer sticks to the context; summarization-style asks tolerate a
// little more freedom.
const (
	FactualTemperature  = 0.2
	CreativeTemperature = 0.6
)

// creativeMarkers are question words, Spanish and English, that signal
// an open-ended request rather than a fact lookup.
var creativeMarkers = []string{
	"resume", "resumen", "resumir",
	"redacta", "escribe", "elabora",
	"sugiere", "sugerencia", "propon",
	"explica", "compara",
	"summarize", "summary", "draft", "write",
	"suggest", "explain", "compare", "brainstorm",
}

// ResolveTemperature picks the sampling temperature. A non-negative
// configured value always wins; a negative one means auto, decided
// from the question wording.
func ResolveTemperature(configured float64, question string) float64 {
	if configured >= 0 {
		return configured
	}
	q := strings.ToLower(question)
	for _, m := range creativeMarkers {
		if strings.Contains(q, m) {
			return CreativeTemperature
		}
	}
	return FactualTemperature
}

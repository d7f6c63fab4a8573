// Package prompt renders the generation prompt and packs retrieved
// passages into it under a token budget.
package prompt

import (
	"fmt"
	"strings"
)

// NotFoundAnswer is the exact sentence the model is instructed to emit
// when the context does not contain the answer. The service layer
// matches on it to mark an answer as ungrounded.
const NotFoundAnswer = "No hay información suficiente en el contexto."

// systemPrompt carries the grounding guardrails. The model only sees
// retrieved fragments, never the question alone.
const systemPrompt = "Eres un asistente PRECISO. Responde SOLO con información que esté en los " +
	"fragmentos proporcionados. No inventes nada. " +
	"Si el contexto no contiene la respuesta, escribe EXACTAMENTE: " +
	"\"" + NotFoundAnswer + "\""

// Render wraps the question and context fragments in the
// Mistral-Instruct template. Empty fragments are skipped; an empty
// context still produces a valid prompt so the guardrail answer can
// fire.
func Render(question string, contexts []string) string {
	blocks := make([]string, 0, len(contexts))
	for _, c := range contexts {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[%d] %s", len(blocks)+1, c))
	}

	user := "Usa EXCLUSIVAMENTE los fragmentos anteriores. " +
		"Responde en español, de forma breve y directa. " +
		"Pregunta: " + strings.TrimSpace(question)

	return fmt.Sprintf("<s>[INST] <<SYS>>\n%s\n<</SYS>>\n\nContexto:\n%s\n\n%s [/INST]",
		systemPrompt, strings.Join(blocks, "\n\n"), user)
}

package store

import (
	"regexp"
	"strings"
)

// wordRe matches runs of Unicode letters and digits. Accented
// characters stay inside a token, so Spanish text tokenizes correctly.
var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize lowercases text and splits it into word tokens. Used by the
// lexical index analyzer; queries and documents must tokenize the same
// way for BM25 scores to mean anything.
func Tokenize(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

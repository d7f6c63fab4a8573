// Package segment splits cleaned document text into sentence-bounded,
// size-capped, overlapping chunks for indexing and retrieval.
package segment

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxChars is the default maximum chunk size in characters.
	DefaultMaxChars = 900
	// DefaultOverlapSentences is the default sentence overlap between
	// consecutive chunks.
	DefaultOverlapSentences = 2
	// hardSplitOverlap is the character overlap used when a single
	// sentence exceeds the maximum chunk size and must be cut mid-sentence.
	hardSplitOverlap = 50
)

// sentenceEndRe matches sentence boundaries: terminal punctuation
// followed by whitespace.
var sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)

// abbrevRe matches common abbreviations whose trailing period must not be
// treated as a sentence end.
var abbrevRe = regexp.MustCompile(`\b(?:Sr|Sra|Dr|Dra|Ing|Lic|etc|p|pp|Fig|Ref|No|Mr|Mrs|Ms|Prof)\.`)

// dotSentinel temporarily replaces protected periods during splitting.
const dotSentinel = "\x00"

// Segmenter splits text into chunks.
type Segmenter struct {
	maxChars         int
	overlapSentences int
}

// New creates a Segmenter. Non-positive arguments fall back to defaults.
func New(maxChars, overlapSentences int) *Segmenter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlapSentences < 0 {
		overlapSentences = DefaultOverlapSentences
	}
	return &Segmenter{maxChars: maxChars, overlapSentences: overlapSentences}
}

// SplitSentences splits text into sentences, protecting abbreviation
// periods from being mistaken for sentence ends.
func SplitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	protected := abbrevRe.ReplaceAllStringFunc(text, func(m string) string {
		return strings.ReplaceAll(m, ".", dotSentinel)
	})

	// Keep the terminal punctuation with the sentence by inserting a
	// separator after it, then splitting on the separator.
	marked := sentenceEndRe.ReplaceAllString(protected, "$1\x01")
	parts := strings.Split(marked, "\x01")

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ReplaceAll(p, dotSentinel, "."))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Chunk splits text into sentence-bounded chunks of at most maxChars
// characters, seeding each new chunk with the last overlapSentences
// sentences of the previous one. A single sentence longer than maxChars
// is hard-split at the size boundary with a small character overlap.
//
// Empty input yields no chunks; input that fits yields a single chunk.
func (s *Segmenter) Chunk(text string) []string {
	sents := SplitSentences(Clean(text))
	if len(sents) == 0 {
		return nil
	}

	var out []string
	var buf []string
	curLen := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		c := Clean(strings.Join(buf, " "))
		if c != "" {
			out = append(out, c)
		}
	}

	seedOverlap := func() {
		if s.overlapSentences > 0 && len(buf) > s.overlapSentences {
			buf = append([]string(nil), buf[len(buf)-s.overlapSentences:]...)
		} else if s.overlapSentences == 0 {
			buf = nil
		} else {
			buf = append([]string(nil), buf...)
		}
		curLen = 0
		for i, x := range buf {
			curLen += len(x)
			if i > 0 {
				curLen++
			}
		}
	}

	for _, sent := range sents {
		if len(sent) > s.maxChars {
			// Oversized sentence: flush what we have, then hard-split.
			flush()
			buf, curLen = nil, 0
			step := s.maxChars - hardSplitOverlap
			if step <= 0 {
				step = s.maxChars
			}
			runes := []rune(sent)
			for i := 0; i < len(runes); i += step {
				end := min(i+s.maxChars, len(runes))
				piece := strings.TrimSpace(string(runes[i:end]))
				if piece != "" {
					out = append(out, piece)
				}
				if end == len(runes) {
					break
				}
			}
			continue
		}

		if curLen+len(sent)+1 > s.maxChars && len(buf) > 0 {
			flush()
			seedOverlap()
		}
		buf = append(buf, sent)
		curLen += len(sent) + 1
	}
	flush()

	// Drop whitespace-only chunks.
	final := out[:0]
	for _, c := range out {
		if strings.TrimSpace(c) != "" {
			final = append(final, c)
		}
	}
	return final
}

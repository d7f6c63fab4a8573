package segment

import (
	"regexp"
	"strings"
)

var (
	crlfRe       = regexp.MustCompile(`\r\n?`)
	hyphenWrapRe = regexp.MustCompile(`-\s*\n\s*`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes extracted text: CRLF to LF, non-breaking spaces,
// hyphenated line wraps, whitespace runs, and blank-line runs.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = crlfRe.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, " ", " ")
	s = hyphenWrapRe.ReplaceAllString(s, "")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// headerFooterMaxLines is how many leading/trailing lines are considered
// when detecting repeated headers and footers across pages.
const headerFooterMaxLines = 3

// StripHeadersFooters removes headers and footers that repeat across at
// least 60% of pages (minimum 2). Repetition is detected on the first and
// last headerFooterMaxLines non-empty lines of each page.
func StripHeadersFooters(pages []string) []string {
	type sig string

	join := func(lines []string) sig {
		trimmed := make([]string, len(lines))
		for i, ln := range lines {
			trimmed[i] = strings.TrimSpace(ln)
		}
		return sig(strings.Join(trimmed, "\x00"))
	}

	tops := make(map[sig]int)
	bots := make(map[sig]int)
	topLens := make(map[sig]int)
	botLens := make(map[sig]int)

	for _, p := range pages {
		lines := nonEmptyLines(p)
		if len(lines) == 0 {
			continue
		}
		n := min(headerFooterMaxLines, len(lines))
		top := join(lines[:n])
		bot := join(lines[len(lines)-n:])
		tops[top]++
		bots[bot]++
		topLens[top] = n
		botLens[bot] = n
	}

	threshold := max(2, int(0.6*float64(len(pages))))
	rmTop := map[sig]int{}
	rmBot := map[sig]int{}
	for s, c := range tops {
		if c >= threshold {
			rmTop[s] = topLens[s]
		}
	}
	for s, c := range bots {
		if c >= threshold {
			rmBot[s] = botLens[s]
		}
	}

	out := make([]string, len(pages))
	for i, p := range pages {
		lines := strings.Split(p, "\n")
		if len(nonEmptyLines(p)) == 0 {
			out[i] = ""
			continue
		}
		for s, n := range rmTop {
			if len(lines) >= n && join(lines[:n]) == s {
				lines = lines[n:]
				break
			}
		}
		for s, n := range rmBot {
			if len(lines) >= n && join(lines[len(lines)-n:]) == s {
				lines = lines[:len(lines)-n]
				break
			}
		}
		out[i] = Clean(strings.Join(lines, "\n"))
	}
	return out
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if strings.TrimSpace(ln) != "" {
			out = append(out, ln)
		}
	}
	return out
}

package extract

import (
	"regexp"
	"strings"
)

var (
	mdCodeBlockRe = regexp.MustCompile("(?s)```[^`]*```")
	mdInlineRe    = regexp.MustCompile("`[^`]+`")
	mdImageRe     = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	mdLinkRe      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeadingRe   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdQuoteRe     = regexp.MustCompile(`(?m)^>\s*`)
	mdRuleRe      = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	mdBulletRe    = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	mdNumberedRe  = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	mdTableRowRe  = regexp.MustCompile(`(?m)^\s*\|`)
	mdTableSepRe  = regexp.MustCompile(`(?m)^\s*[|:\- ]+\s*$`)
	mdBlankRunRe  = regexp.MustCompile(`\n{3,}`)
)

// StripMarkdown reduces Markdown to the plain prose it carries. Code
// blocks and images are dropped, links keep their anchor text, and
// table rows become plain pipe-separated lines.
func StripMarkdown(content string) string {
	content = mdCodeBlockRe.ReplaceAllString(content, "")
	content = mdInlineRe.ReplaceAllString(content, "")
	content = mdImageRe.ReplaceAllString(content, "")
	content = mdLinkRe.ReplaceAllString(content, "$1")
	content = mdHeadingRe.ReplaceAllString(content, "")
	content = mdQuoteRe.ReplaceAllString(content, "")
	content = mdTableSepRe.ReplaceAllString(content, "")

	content = strings.ReplaceAll(content, "**", "")
	content = strings.ReplaceAll(content, "__", "")
	content = strings.ReplaceAll(content, "*", "")

	content = mdRuleRe.ReplaceAllString(content, "")
	content = mdBulletRe.ReplaceAllString(content, "")
	content = mdNumberedRe.ReplaceAllString(content, "")

	// Table cells read fine as sentence fragments once the pipes are
	// collapsed to spaces.
	content = mdTableRowRe.ReplaceAllStringFunc(content, func(string) string { return "" })
	content = strings.ReplaceAll(content, " | ", ". ")
	content = strings.ReplaceAll(content, "|", " ")

	content = mdBlankRunRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/commentary-cli/internal/model"
)

// Web-search responses embed source links directly in the prose. The
// patterns below rewrite them to bare [n] footnote markers so the commentary
// cell stays readable and the Sources column carries the URLs.
var (
	markdownLinkRe    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	parenFootnoteRe   = regexp.MustCompile(`\(\s*(\[[0-9]+\])\s*\)`)
	doubleParenURLRe  = regexp.MustCompile(`\(\(https?://[^)]+\)\)`)
	parenURLRe        = regexp.MustCompile(`\(https?://[^)]+\)`)
	multiSpaceRe      = regexp.MustCompile(`  +`)
	spaceBeforePuncRe = regexp.MustCompile(` ([.,;:!?])`)
)

// cleanInlineCitations replaces inline links with [n] markers matching the
// numbered citation list, then strips leftover link debris.
func cleanInlineCitations(text string, citations []model.Citation) string {
	text = markdownLinkRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := markdownLinkRe.FindStringSubmatch(m)
		label, url := parts[1], parts[2]
		for _, c := range citations {
			if strings.Contains(url, c.URL) || strings.Contains(c.URL, url) {
				return fmt.Sprintf("[%d]", c.Index)
			}
		}
		// Unknown URL: keep the label, drop the link formatting.
		return label
	})

	// ([N]) or (( [N] )) -> [N]
	text = parenFootnoteRe.ReplaceAllString(text, "$1")

	// Leftover bare URLs in single or double parentheses.
	text = doubleParenURLRe.ReplaceAllString(text, "")
	text = parenURLRe.ReplaceAllString(text, "")

	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = spaceBeforePuncRe.ReplaceAllString(text, "$1")

	return strings.TrimSpace(text)
}

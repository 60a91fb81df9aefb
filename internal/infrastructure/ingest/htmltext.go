package ingest

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	feedTextPolicy = bluemonday.StrictPolicy()
	blockBreaks    = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|h[1-6]|blockquote|pre)>`)
)

// htmlToText reduces an HTML-formatted chat message to plain lines. Block
// boundaries become newlines because code extraction works line by line.
func htmlToText(s string) string {
	s = blockBreaks.ReplaceAllString(s, "\n")
	return strings.TrimSpace(html.UnescapeString(feedTextPolicy.Sanitize(s)))
}

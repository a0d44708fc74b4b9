// Package markup removes HTML comments and tags from document text before
// tokenization.
package markup

import "regexp"

var (
	commentPattern = regexp.MustCompile(`<!--.*?-->`)
	tagPattern     = regexp.MustCompile(`</*\s*[\w\-]+(\s*[\w\-]+\s*=\s*("[^"]*"|[\w\n%\-#/.+,]+|'[^']*'))*\s*/*>`)
)

// Strip returns text with comments removed first and tags second. A comment
// must open and close on one line to be removed.
func Strip(text string) string {
	text = commentPattern.ReplaceAllString(text, "")
	return tagPattern.ReplaceAllString(text, "")
}

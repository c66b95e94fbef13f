// Package textproc converts raw section text into retrieval-sized chunks.
// Normalization and chunking are pure functions; compression delegates to a
// generative model for sections that exceed the chunk size bound.
package textproc

import (
	"regexp"
	"strings"
)

var (
	codeFenceRe  = regexp.MustCompile("(?s)```.*?```")
	blankRunRe   = regexp.MustCompile(`\n{2,}`)
	hspaceRunRe  = regexp.MustCompile(`[\t ]{2,}`)
	lineEndingRe = regexp.MustCompile(`\r\n|\r`)
)

// Normalize prepares raw section text for chunking: code fences are stripped,
// line endings are unified, runs of blank lines collapse to a single newline,
// and runs of horizontal whitespace collapse to a single space.
func Normalize(text string) string {
	s := codeFenceRe.ReplaceAllString(text, " ")
	s = lineEndingRe.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n")
	s = hspaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

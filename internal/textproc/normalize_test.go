package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_StripsCodeFences(t *testing.T) {
	in := "before\n```go\nfunc main() {}\n```\nafter"
	out := Normalize(in)

	assert.NotContains(t, out, "```")
	assert.NotContains(t, out, "func main")
	assert.Contains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestNormalize_CollapsesBlankLines(t *testing.T) {
	in := "one\n\n\n\ntwo\n\nthree"
	out := Normalize(in)

	assert.Equal(t, "one\ntwo\nthree", out)
}

func TestNormalize_CollapsesHorizontalWhitespace(t *testing.T) {
	in := "a  b\t\tc   d"
	out := Normalize(in)

	assert.Equal(t, "a b c d", out)
}

func TestNormalize_UnifiesLineEndings(t *testing.T) {
	in := "a\r\nb\rc"
	out := Normalize(in)

	assert.Equal(t, "a\nb\nc", out)
}

func TestNormalize_TrimsEnds(t *testing.T) {
	assert.Equal(t, "text", Normalize("  \n text \n\n "))
}

func TestNormalize_EmptyInput(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("   \n\n\t "))
}

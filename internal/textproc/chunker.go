package textproc

import (
	"strings"
	"unicode/utf8"
)

// Default chunk size bounds, in characters (runes).
const (
	// DefaultChunkTarget is the preferred chunk length. Buffers shorter than
	// this keep absorbing following paragraphs instead of being ejected early.
	DefaultChunkTarget = 600

	// DefaultChunkMax is the hard upper bound. Only a hard-split slice of an
	// oversized single paragraph may reach exactly this length.
	DefaultChunkMax = 900
)

// Chunk splits normalized text into retrieval-sized pieces.
//
// Text at or under max is returned unchanged as a single chunk. Otherwise
// paragraphs (split on newlines) are packed greedily into a buffer joined by
// single newlines: while the next paragraph keeps the buffer at or under max
// it is appended; when it would not fit, the buffer is flushed as a finished
// chunk and the paragraph starts a new one. A single paragraph longer than
// max bypasses the buffer entirely and is hard-split into max-sized slices.
// Chunk order follows paragraph order; the caller assigns 0-based chunk ids
// over the returned list.
func Chunk(text string, target, max int) []string {
	if target <= 0 {
		target = DefaultChunkTarget
	}
	if max <= 0 {
		max = DefaultChunkMax
	}

	if utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var parts []string
	var buf string

	flush := func() {
		if s := strings.TrimSpace(buf); s != "" {
			parts = append(parts, s)
		}
		buf = ""
	}

	for _, p := range strings.Split(text, "\n") {
		line := strings.TrimSpace(p)
		if line == "" {
			continue
		}

		lineLen := utf8.RuneCountInString(line)
		if lineLen > max {
			// Oversized paragraph: hard-split into max-sized slices,
			// bypassing the buffer.
			flush()
			runes := []rune(line)
			for i := 0; i < len(runes); i += max {
				end := i + max
				if end > len(runes) {
					end = len(runes)
				}
				parts = append(parts, string(runes[i:end]))
			}
			continue
		}

		joined := line
		if buf != "" {
			joined = buf + "\n" + line
		}
		if utf8.RuneCountInString(joined) <= max {
			buf = joined
			continue
		}

		// The line does not fit. Either way the buffer is flushed and the
		// line seeds the next one; short buffers under target are flushed
		// rather than padded so a trailing short paragraph can merge with
		// what follows.
		flush()
		buf = line
	}
	flush()

	return parts
}

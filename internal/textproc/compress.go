package textproc

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Generator produces free-form text from a prompt. Satisfied by the model
// client; kept minimal here so the compressor can be tested with a fake.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// compressPrompt instructs the model to produce a retrieval-friendly digest.
// The soft length target keeps the result comfortably under the chunk bound.
const compressPrompt = `Compress the following content into a retrieval-friendly summary of its key points (450-600 characters). Preserve key facts, entities and terminology; drop filler. Keep the language of the original text.

%s`

// Compressor shortens oversized section text via the generative model.
type Compressor struct {
	gen Generator
	max int
}

// NewCompressor creates a compressor that leaves text at or under max
// characters untouched.
func NewCompressor(gen Generator, max int) *Compressor {
	if max <= 0 {
		max = DefaultChunkMax
	}
	return &Compressor{gen: gen, max: max}
}

// Compress returns text unchanged when it fits within the bound; otherwise it
// asks the generator for a compact summary. An empty generation result falls
// back to the original text rather than erasing the section.
func (c *Compressor) Compress(ctx context.Context, text string) (string, bool, error) {
	if utf8.RuneCountInString(text) <= c.max {
		return text, false, nil
	}

	out, err := c.gen.Generate(ctx, fmt.Sprintf(compressPrompt, text))
	if err != nil {
		return "", false, fmt.Errorf("compress section text: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return text, false, nil
	}
	return out, true, nil
}

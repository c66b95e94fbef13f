package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder returns a fixed vector and counts calls.
type countingEmbedder struct {
	calls int
	vec   []float32
}

func (e *countingEmbedder) Embed(_ context.Context, _ string, _ TaskType) ([]float32, error) {
	e.calls++
	return e.vec, nil
}

func (e *countingEmbedder) Dimensions() int   { return len(e.vec) }
func (e *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder_SecondCallHitsCache(t *testing.T) {
	// Given: a cached embedder
	inner := &countingEmbedder{vec: []float32{1, 2, 3}}
	cached := NewCachedEmbedder(inner, 10)

	// When: I embed the same text twice
	first, err := cached.Embed(context.Background(), "question", TaskQuery)
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "question", TaskQuery)
	require.NoError(t, err)

	// Then: one inner call, identical vectors
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)
}

func TestCachedEmbedder_TaskIntentSeparatesEntries(t *testing.T) {
	// Given: a cached embedder
	inner := &countingEmbedder{vec: []float32{1}}
	cached := NewCachedEmbedder(inner, 10)

	// When: I embed the same text with different intents
	_, err := cached.Embed(context.Background(), "text", TaskQuery)
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "text", TaskDocument)
	require.NoError(t, err)

	// Then: both went to the inner embedder
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_PassesThroughMetadata(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 2}}
	cached := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 2, cached.Dimensions())
	assert.Equal(t, "counting", cached.ModelName())
}

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorBlobRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 0, 3.75}

	out := decodeVector(encodeVector(in))

	assert.Equal(t, in, out)
}

func TestNormalizeVectorInPlace(t *testing.T) {
	v := []float32{3, 4}
	normalizeVectorInPlace(v)

	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}

func TestNormalizeVectorInPlace_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	normalizeVectorInPlace(v)

	assert.Equal(t, []float32{0, 0, 0}, v)
}

func TestVectorIndex_SearchRanksBySimilarity(t *testing.T) {
	// Given: three vectors at varying angles to the query
	idx := newVectorIndex(3)
	require.NoError(t, idx.add(1, []float32{1, 0, 0}))
	require.NoError(t, idx.add(2, []float32{0.9, 0.1, 0}))
	require.NoError(t, idx.add(3, []float32{0, 0, 1}))

	// When: I search near the first vector
	hits, err := idx.search([]float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)

	// Then: the exact match scores ~1 and ranks first
	require.NotEmpty(t, hits)
	assert.Equal(t, int64(1), hits[0].rowID)
	assert.InDelta(t, 1.0, hits[0].score, 1e-5)
}

func TestVectorIndex_UpsertOrphansOldNode(t *testing.T) {
	// Given: a vector replaced by a very different one under the same rowid
	idx := newVectorIndex(2)
	require.NoError(t, idx.add(7, []float32{1, 0}))
	require.NoError(t, idx.add(7, []float32{0, 1}))

	// When: I search near the old vector
	hits, err := idx.search([]float32{1, 0}, 10, 0)
	require.NoError(t, err)

	// Then: only the replacement is visible for rowid 7
	assert.Equal(t, 1, idx.count())
	for _, h := range hits {
		if h.rowID == 7 {
			assert.InDelta(t, 0.0, h.score, 1e-5)
		}
	}
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	idx := newVectorIndex(3)

	err := idx.add(1, []float32{1, 0})
	require.Error(t, err)
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})

	_, err = idx.search([]float32{1}, 5, 0)
	require.Error(t, err)
}

func TestVectorIndex_EmptySearch(t *testing.T) {
	idx := newVectorIndex(2)

	hits, err := idx.search([]float32{1, 0}, 5, 0)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

package store

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW parameters. EfSearch is the query-time search width; layered
// retrieval raises it per query for its focused second pass.
const (
	DefaultEfSearch       = 64
	defaultM              = 16
	defaultLevelGenFactor = 0.25
)

// encodeVector serializes a vector as little-endian float32 for BLOB storage.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes a vector from its BLOB form.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// vectorCandidate is one approximate-nearest-neighbor hit, identified by the
// embeddings table rowid.
type vectorCandidate struct {
	rowID int64
	score float64
}

// vectorIndex is an in-memory HNSW graph over the embeddings table, keyed by
// rowid. Upserts orphan the previous graph node (lazy deletion) rather than
// removing it; orphans never surface in results because their key mapping is
// gone.
type vectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[int64]uint64 // rowid -> graph key
	keyMap  map[uint64]int64 // graph key -> rowid
	nextKey uint64
}

func newVectorIndex(dims int) *vectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = defaultM
	graph.EfSearch = DefaultEfSearch
	graph.Ml = defaultLevelGenFactor

	return &vectorIndex{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[int64]uint64),
		keyMap: make(map[uint64]int64),
	}
}

// add inserts or replaces the vector for a rowid.
func (x *vectorIndex) add(rowID int64, vector []float32) error {
	if len(vector) != x.dims {
		return ErrDimensionMismatch{Expected: x.dims, Got: len(vector)}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if oldKey, exists := x.idMap[rowID]; exists {
		delete(x.keyMap, oldKey)
		delete(x.idMap, rowID)
	}

	key := x.nextKey
	x.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeVectorInPlace(vec)

	x.graph.Add(hnsw.MakeNode(key, vec))
	x.idMap[rowID] = key
	x.keyMap[key] = rowID
	return nil
}

// search returns up to k candidates nearest to the query, widest-effort
// first. efSearch widens the graph traversal for this call when larger than
// the default.
func (x *vectorIndex) search(query []float32, k, efSearch int) ([]vectorCandidate, error) {
	if len(query) != x.dims {
		return nil, ErrDimensionMismatch{Expected: x.dims, Got: len(query)}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.graph.Len() == 0 {
		return nil, nil
	}

	if efSearch > DefaultEfSearch {
		x.graph.EfSearch = efSearch
		defer func() { x.graph.EfSearch = DefaultEfSearch }()
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	nodes := x.graph.Search(q, k)

	results := make([]vectorCandidate, 0, len(nodes))
	for _, node := range nodes {
		rowID, ok := x.keyMap[node.Key]
		if !ok {
			// Orphaned by a later upsert of the same chunk.
			continue
		}
		distance := x.graph.Distance(q, node.Value)
		results = append(results, vectorCandidate{
			rowID: rowID,
			// Cosine distance to pgvector-style similarity score.
			score: 1.0 - float64(distance),
		})
	}
	return results, nil
}

// count returns the number of live vectors.
func (x *vectorIndex) count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idMap)
}

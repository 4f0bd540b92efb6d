package index

import (
	"fmt"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/storage"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

const (
	KindFlat = "flat"
	KindHnsw = "hnsw"
)

// Neighbor is a search hit: the position of a record in the vector store and its
// squared Euclidean distance to the query.
type Neighbor struct {
	Pos  uint64
	Dist float32
}

// Searcher answers k-nearest-neighbor queries over a VectorStore.
// Results are sorted ascending by distance and hold at most k entries.
type Searcher interface {
	// Add makes the record at pos searchable. The vector must already be in the store.
	Add(pos uint64, vector types.Vector)
	Search(query types.Vector, k int) []Neighbor
	Len() int
}

// Build creates a searcher of the given kind and loads every record already in vecs.
func Build(kind string, vecs storage.VectorStore) (Searcher, error) {
	switch kind {
	case KindFlat, "":
		return NewFlatIndex(vecs), nil
	case KindHnsw:
		idx := NewHnswIndex(vecs)
		count := vecs.Count()
		for pos := uint64(0); pos < count; pos++ {
			v, err := vecs.Get(pos)
			if err != nil {
				return nil, fmt.Errorf("rebuild hnsw at %d: %w", pos, err)
			}
			idx.Add(pos, v)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index kind: %s", kind)
	}
}

// SquaredL2 returns the squared Euclidean distance between a and b.
func SquaredL2(a, b types.Vector) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

package index

import (
	"container/heap"
	"sort"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/storage"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

// FlatIndex is an exact index: every query scans every record in the store.
type FlatIndex struct {
	vecs storage.VectorStore
}

func NewFlatIndex(vecs storage.VectorStore) *FlatIndex {
	return &FlatIndex{vecs: vecs}
}

// Add is a no-op; the scan reads the store directly.
func (f *FlatIndex) Add(uint64, types.Vector) {}

func (f *FlatIndex) Len() int {
	return int(f.vecs.Count())
}

func (f *FlatIndex) Search(query types.Vector, k int) []Neighbor {
	if k <= 0 || len(query) != f.vecs.Dim() {
		return nil
	}

	// max-heap of the k best so far; the root is the current worst
	h := &worstFirst{}
	f.vecs.ForEach(func(pos uint64, vec types.Vector) bool {
		n := Neighbor{Pos: pos, Dist: SquaredL2(query, vec)}
		if h.Len() < k {
			heap.Push(h, n)
		} else if closer(n, (*h)[0]) {
			(*h)[0] = n
			heap.Fix(h, 0)
		}
		return true
	})

	out := []Neighbor(*h)
	sort.Slice(out, func(i, j int) bool { return closer(out[i], out[j]) })
	return out
}

// closer orders by distance, then by position.
func closer(a, b Neighbor) bool {
	if a.Dist != b.Dist {
		return a.Dist < b.Dist
	}
	return a.Pos < b.Pos
}

type worstFirst []Neighbor

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

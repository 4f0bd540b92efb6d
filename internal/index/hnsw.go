package index

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/storage"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

const (
	MaxLevel       = 16
	M              = 16 // Max connections per layer
	M0             = 32 // Max connections for layer 0
	EfConstruction = 40
	EfSearch       = 50
)

type node struct {
	pos       uint64
	level     int
	neighbors [][]uint64 // [level][neighbors]
}

// HnswIndex is an in-memory approximate graph over a VectorStore. The graph is not
// persisted; Build replays the store at startup.
type HnswIndex struct {
	nodes           map[uint64]*node
	vecs            storage.VectorStore // Source of truth for vectors
	entryPoint      uint64
	maxLevel        int
	currentMaxLevel int
	mu              sync.RWMutex
}

func NewHnswIndex(vecs storage.VectorStore) *HnswIndex {
	return &HnswIndex{
		nodes:           make(map[uint64]*node),
		vecs:            vecs,
		maxLevel:        MaxLevel,
		currentMaxLevel: -1,
	}
}

func (idx *HnswIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

func (idx *HnswIndex) Add(pos uint64, vector types.Vector) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	level := idx.randomLevel()
	n := &node{
		pos:       pos,
		level:     level,
		neighbors: make([][]uint64, level+1),
	}
	idx.nodes[pos] = n

	if idx.currentMaxLevel == -1 {
		idx.entryPoint = pos
		idx.currentMaxLevel = level
		return
	}

	ep := idx.entryPoint

	// 1. Find the nearest entry point at node's level by traversing top levels
	for l := idx.currentMaxLevel; l > level; l-- {
		ep, _ = idx.greedy(vector, ep, l)
	}

	// 2. Insert into layers from top-down
	for l := min(level, idx.currentMaxLevel); l >= 0; l-- {
		nearest := idx.searchLayerK(vector, ep, EfConstruction, l)

		// Select M neighbors (simplified: just take top M)
		m := M
		if l == 0 {
			m = M0
		}
		if len(nearest) > m {
			nearest = nearest[:m]
		}

		// Connect bidirectionally
		ids := make([]uint64, len(nearest))
		for i, nb := range nearest {
			ids[i] = nb.Pos
			other := idx.nodes[nb.Pos]
			other.neighbors[l] = append(other.neighbors[l], pos)
		}
		n.neighbors[l] = ids

		if len(nearest) > 0 {
			ep = nearest[0].Pos
		}
	}

	if level > idx.currentMaxLevel {
		idx.entryPoint = pos
		idx.currentMaxLevel = level
	}
}

func (idx *HnswIndex) Search(query types.Vector, k int) []Neighbor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.currentMaxLevel == -1 || k <= 0 || len(query) != idx.vecs.Dim() {
		return nil
	}

	ep := idx.entryPoint
	for l := idx.currentMaxLevel; l > 0; l-- {
		ep, _ = idx.greedy(query, ep, l)
	}

	ef := EfSearch
	if k > ef {
		ef = k
	}
	res := idx.searchLayerK(query, ep, ef, 0)
	if len(res) > k {
		res = res[:k]
	}
	return res
}

func (idx *HnswIndex) dist(query types.Vector, pos uint64) float32 {
	v, err := idx.vecs.Get(pos)
	if err != nil {
		return float32(1e38)
	}
	return SquaredL2(query, v)
}

// greedy walks one level towards the single nearest node.
func (idx *HnswIndex) greedy(query types.Vector, entry uint64, level int) (uint64, float32) {
	curr := entry
	currDist := idx.dist(query, entry)

	changed := true
	for changed {
		changed = false
		for _, nb := range idx.nodes[curr].neighbors[level] {
			d := idx.dist(query, nb)
			if d < currDist {
				currDist = d
				curr = nb
				changed = true
			}
		}
	}
	return curr, currDist
}

// searchLayerK finds the k nearest nodes at a level.
func (idx *HnswIndex) searchLayerK(query types.Vector, entry uint64, k int, level int) []Neighbor {
	visited := map[uint64]bool{entry: true}
	start := Neighbor{Pos: entry, Dist: idx.dist(query, entry)}
	candidates := []Neighbor{start}
	results := []Neighbor{start}

	for len(candidates) > 0 {
		c := candidates[0]
		candidates = candidates[1:]

		if len(results) >= k && c.Dist > results[len(results)-1].Dist {
			continue
		}

		n := idx.nodes[c.Pos]
		if level >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[level] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := idx.dist(query, nb)

			if len(results) < k || d < results[len(results)-1].Dist {
				res := Neighbor{Pos: nb, Dist: d}
				candidates = append(candidates, res)
				results = append(results, res)

				sort.Slice(results, func(i, j int) bool { return closer(results[i], results[j]) })
				if len(results) > k {
					results = results[:k]
				}
				sort.Slice(candidates, func(i, j int) bool { return closer(candidates[i], candidates[j]) })
			}
		}
	}
	return results
}

func (idx *HnswIndex) randomLevel() int {
	lvl := 0
	for rand.Float64() < 0.5 && lvl < idx.maxLevel {
		lvl++
	}
	return lvl
}

// Package embedding maps text segments to fixed-dimension vectors.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

// Embedder maps a batch of texts to vectors of Dimension() floats, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]types.Vector, error)
	Dimension() int
}

// HashEmbedder is a deterministic local embedder. Each lowercased word is hashed
// into a signed bucket and the result is L2 normalized, so texts sharing words
// land close together. It needs no model and no network.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dim: dimension}
}

func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([]types.Vector, error) {
	out := make([]types.Vector, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashEmbedder) embedOne(text string) types.Vector {
	vec := make(types.Vector, e.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dim))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	l2normalize(vec)
	return vec
}

// l2normalize normalizes a vector to unit length
func l2normalize(v types.Vector) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}

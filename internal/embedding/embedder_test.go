package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), []string{"Go is great for AI.", "Go is great for AI."})
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, a[0], a[1])
	assert.Len(t, a[0], 64)

	var norm float64
	for _, x := range a[0] {
		norm += float64(x * x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewHashEmbedder(384)
	v, err := e.Embed(context.Background(), []string{
		"what colour is the sky",
		"the sky is blue",
		"grass grows quickly in spring",
	})
	require.NoError(t, err)

	dist := func(a, b []float32) float32 {
		var s float32
		for i := range a {
			d := a[i] - b[i]
			s += d * d
		}
		return s
	}
	assert.Less(t, dist(v[0], v[1]), dist(v[0], v[2]))
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	v, err := NewHashEmbedder(8).Embed(context.Background(), []string{""})
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), []float32(v[0]))
}

func TestOpenAIEmbedder_Batches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.Dimensions)

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// reply in reverse order to check the index is honoured
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Embedding: []float32{float32(len(req.Input[j])), 0, 1}, Index: j}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	t.Setenv("TEST_OPENAI_KEY", "test-key")
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		BaseURL:   srv.URL + "/v1",
		APIKeyEnv: "TEST_OPENAI_KEY",
		Model:     "text-embedding-3-small",
		Dimension: 3,
		BatchSize: 2,
	})
	require.NoError(t, err)

	got, err := e.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, v := range got {
		assert.Equal(t, float32(i+1), v[0])
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIEmbedder_MissingKey(t *testing.T) {
	t.Setenv("EMPTY_KEY_ENV", "")
	_, err := NewOpenAIEmbedder(OpenAIConfig{APIKeyEnv: "EMPTY_KEY_ENV", Dimension: 3})
	assert.Error(t, err)
}

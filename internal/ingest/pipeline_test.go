package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/answer"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/chunker"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/embedding"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/engine"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/extract"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

// colourEmbedder puts sky text on the first axis and grass text on the second.
type colourEmbedder struct {
	err   error
	empty bool
}

func (c colourEmbedder) Embed(_ context.Context, texts []string) ([]types.Vector, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.empty {
		return nil, nil
	}
	out := make([]types.Vector, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		switch {
		case strings.Contains(t, "sky"):
			out[i] = types.Vector{1, 0, 0}
		case strings.Contains(t, "grass"):
			out[i] = types.Vector{0, 1, 0}
		default:
			out[i] = types.Vector{0, 0, 1}
		}
	}
	return out, nil
}

func (colourEmbedder) Dimension() int { return 3 }

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newPipeline(t *testing.T, emb embedding.Embedder, size int) (*Pipeline, *engine.Database) {
	t.Helper()
	db, err := engine.Open(engine.DataDirOptions(t.TempDir(), 3))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPipeline(db, emb, chunker.New(size)), db
}

func TestPipeline_SkyAndGrass(t *testing.T) {
	docs := t.TempDir()
	writeFile(t, docs, "sky.txt", "The sky is blue.")
	writeFile(t, docs, "grass.md", "Grass is green.")

	p, db := newPipeline(t, colourEmbedder{}, 20)
	report, err := p.Run(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"grass.md", "sky.txt"}, report.Processed)
	assert.Equal(t, 2, report.Segments)
	assert.Empty(t, report.Failed)

	hits, err := db.Search(types.Vector{0.9, 0.1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "The sky is blue.", hits[0].Content)
	assert.Equal(t, "sky.txt", hits[0].Filename)

	res, err := engine.NewAnswerer(db, colourEmbedder{}, answer.StaticProvider{}, 1).
		Answer(context.Background(), "What colour is the sky?")
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", res.Answer)
}

func TestPipeline_RerunInsertsNothing(t *testing.T) {
	docs := t.TempDir()
	writeFile(t, docs, "a.txt", "alpha beta gamma delta epsilon zeta eta theta")
	writeFile(t, docs, "b.txt", "one two three")

	p, db := newPipeline(t, embedding.NewHashEmbedder(3), 12)
	first, err := p.Run(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, first.Processed, 2)

	before, err := db.Stats()
	require.NoError(t, err)

	second, err := p.Run(context.Background(), docs)
	require.NoError(t, err)
	assert.Empty(t, second.Processed)
	require.Len(t, second.Skipped, 2)
	assert.Equal(t, "a.txt", second.Skipped[0].Filename)
	assert.Equal(t, "b.txt", second.Skipped[1].Filename)
	assert.Equal(t, "already ingested", second.Skipped[0].Reason)

	after, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.Rows, after.Rows)
	assert.Equal(t, before.Vectors, after.Vectors)
}

func TestPipeline_UnusableFilesAreSkipped(t *testing.T) {
	docs := t.TempDir()
	writeFile(t, docs, "blank.txt", "   \n\t ")
	writeFile(t, docs, "image.png", "\x89PNG")
	writeFile(t, docs, "notes.txt", "Grass is green.")
	require.NoError(t, os.Mkdir(filepath.Join(docs, "nested"), 0o755))

	p, db := newPipeline(t, colourEmbedder{}, 512)
	report, err := p.Run(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, []string{"notes.txt"}, report.Processed)
	assert.Empty(t, report.Failed)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, "blank.txt", report.Skipped[0].Filename)
	assert.ErrorIs(t, report.Skipped[0].Err(), ErrEmptyContent)
	assert.Equal(t, "image.png", report.Skipped[1].Filename)
	assert.ErrorIs(t, report.Skipped[1].Err(), extract.ErrUnsupportedFormat)

	has, err := db.HasFilename("image.png")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPipeline_EmbedderProblems(t *testing.T) {
	docs := t.TempDir()
	writeFile(t, docs, "sky.txt", "The sky is blue.")

	p, _ := newPipeline(t, colourEmbedder{err: errors.New("quota")}, 512)
	_, err := p.IngestFile(context.Background(), filepath.Join(docs, "sky.txt"))
	assert.ErrorIs(t, err, engine.ErrProviderFailure)

	p, db := newPipeline(t, colourEmbedder{empty: true}, 512)
	_, err = p.IngestFile(context.Background(), filepath.Join(docs, "sky.txt"))
	assert.ErrorIs(t, err, ErrNoEmbeddings)
	assert.True(t, IsSkipped(err))

	report, err := p.Run(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	assert.ErrorIs(t, report.Skipped[0].Err(), ErrNoEmbeddings)
	assert.Empty(t, report.Failed)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Rows)
}

func TestPipeline_IngestFileSkipsKnownName(t *testing.T) {
	docs := t.TempDir()
	writeFile(t, docs, "sky.txt", "The sky is blue.")
	p, _ := newPipeline(t, colourEmbedder{}, 512)

	n, err := p.IngestFile(context.Background(), filepath.Join(docs, "sky.txt"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = p.IngestFile(context.Background(), filepath.Join(docs, "sky.txt"))
	assert.True(t, IsSkipped(err))
}

func TestPipeline_MissingDirectory(t *testing.T) {
	p, _ := newPipeline(t, colourEmbedder{}, 512)
	_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

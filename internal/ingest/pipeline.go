package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/chunker"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/embedding"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/engine"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/extract"
)

var (
	ErrEmptyContent = errors.New("no text extracted")
	ErrNoChunks     = errors.New("text produced no chunks")
	ErrNoEmbeddings = errors.New("embedder returned no vectors")

	errAlreadyIngested = errors.New("already ingested")
)

// FileIssue records why a file was skipped or not ingested.
type FileIssue struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
	err      error
}

func (f FileIssue) Err() error { return f.err }

// Report summarises one ingestion run. Skipped holds files that were already
// ingested or had nothing usable in them; Failed holds files that hit an error.
type Report struct {
	Processed []string    `json:"processed"`
	Skipped   []FileIssue `json:"skipped"`
	Failed    []FileIssue `json:"failed"`
	Segments  int         `json:"segments"`
}

// Pipeline turns files into stored segments: extract, chunk, embed, add. Runs
// are serialized so the ledger check and the insert of one file never race
// with another run over the same file.
type Pipeline struct {
	mu       sync.Mutex
	db       *engine.Database
	embedder embedding.Embedder
	chunker  *chunker.Chunker
}

func NewPipeline(db *engine.Database, emb embedding.Embedder, ch *chunker.Chunker) *Pipeline {
	if ch == nil {
		ch = chunker.New(chunker.DefaultTargetSize)
	}
	return &Pipeline{db: db, embedder: emb, chunker: ch}
}

// Run ingests every regular file directly inside dir in name order. Files
// already in the ledger are skipped. A failing file is recorded and the run
// continues; only an unreadable directory fails the run.
func (p *Pipeline) Run(ctx context.Context, dir string) (Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var report Report

	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := e.Name()
		n, err := p.ingestFile(ctx, filepath.Join(dir, name))
		switch {
		case IsSkipped(err):
			report.Skipped = append(report.Skipped, FileIssue{Filename: name, Reason: err.Error(), err: err})
		case err != nil:
			report.Failed = append(report.Failed, FileIssue{Filename: name, Reason: err.Error(), err: err})
		default:
			report.Processed = append(report.Processed, name)
			report.Segments += n
		}
	}

	slog.Info("ingestion finished", "dir", dir, "processed", len(report.Processed),
		"skipped", len(report.Skipped), "failed", len(report.Failed), "segments", report.Segments)
	return report, nil
}

// IngestFile stores one file and returns how many segments it produced. A file
// whose name is already in the ledger is left alone.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ingestFile(ctx, path)
}

func (p *Pipeline) ingestFile(ctx context.Context, path string) (int, error) {
	name := filepath.Base(path)
	log := slog.With("file", name)

	done, err := p.db.HasFilename(name)
	if err != nil {
		log.Error("ledger lookup failed", "error", err)
		return 0, err
	}
	if done {
		log.Debug("already ingested, skipping")
		return 0, errAlreadyIngested
	}

	text, err := extract.File(path)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			log.Warn("unsupported format, skipping", "error", err)
		} else {
			log.Error("extraction failed", "error", err)
		}
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("no text extracted, skipping")
		return 0, ErrEmptyContent
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		log.Warn("no chunks produced, skipping")
		return 0, ErrNoChunks
	}
	log.Debug("text chunked", "chars", len(text), "chunks", len(chunks))

	vectors, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		log.Error("embedding failed", "error", err)
		return 0, fmt.Errorf("%w: %w", engine.ErrProviderFailure, err)
	}
	if len(vectors) == 0 {
		log.Warn("no embeddings produced, skipping")
		return 0, ErrNoEmbeddings
	}

	filenames := make([]string, len(chunks))
	for i := range filenames {
		filenames[i] = name
	}
	ids, err := p.db.AddDocuments(vectors, chunks, filenames)
	if err != nil {
		log.Error("storing segments failed", "error", err)
		return 0, err
	}

	log.Info("file ingested", "segments", len(ids), "first_id", ids[0])
	return len(ids), nil
}

// IsSkipped reports whether err from IngestFile means the file was passed
// over rather than broken: already ingested, an unsupported format, or no
// usable text, chunks or vectors.
func IsSkipped(err error) bool {
	return errors.Is(err, errAlreadyIngested) ||
		errors.Is(err, extract.ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrNoChunks) ||
		errors.Is(err, ErrNoEmbeddings)
}

package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/index"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/storage"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

const (
	VectorFile   = "vectors.bin"
	DocumentFile = "documents.db"
)

// Options locate and shape a Database.
type Options struct {
	Dimension    int
	VectorPath   string
	DocumentPath string
	IndexKind    string // index.KindFlat (default) or index.KindHnsw
}

// DataDirOptions places both files in dir under their default names.
func DataDirOptions(dir string, dim int) Options {
	return Options{
		Dimension:    dim,
		VectorPath:   filepath.Join(dir, VectorFile),
		DocumentPath: filepath.Join(dir, DocumentFile),
	}
}

// Database keeps the document store and the vector file in step: row id n always
// owns the vector at position n-1. One RWMutex serializes writers against
// everything else; readers share it.
type Database struct {
	mu     sync.RWMutex
	opts   Options
	vecs   *storage.MmapVectorStore
	docs   *storage.BoltDocumentStore
	index  index.Searcher
	closed bool

	// registry bookkeeping, guarded by registry.mu
	key  string
	refs int
}

// Stats describes the current contents of a Database.
type Stats struct {
	Dimension int    `json:"dimension"`
	Rows      uint64 `json:"rows"`
	Vectors   uint64 `json:"vectors"`
	Files     int    `json:"files"`
	IndexKind string `json:"index_kind"`
}

// Open loads both stores, creating them when missing, and checks they agree.
func Open(opts Options) (*Database, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", opts.Dimension)
	}
	if opts.IndexKind == "" {
		opts.IndexKind = index.KindFlat
	}
	for _, p := range []string{opts.VectorPath, opts.DocumentPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
	}

	docs, err := storage.NewBoltDocumentStore(opts.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open document store %s: %w", ErrStorageUnavailable, opts.DocumentPath, err)
	}

	vecs, err := storage.NewMmapVectorStore(opts.VectorPath, opts.Dimension)
	if err != nil {
		_ = docs.Close()
		return nil, fmt.Errorf("%w: open vector file %s: %w", ErrStorageUnavailable, opts.VectorPath, err)
	}

	db := &Database{opts: opts, vecs: vecs, docs: docs}
	if err := db.reconcile(); err != nil {
		_ = vecs.Close()
		_ = docs.Close()
		return nil, err
	}

	db.index, err = index.Build(opts.IndexKind, vecs)
	if err != nil {
		_ = vecs.Close()
		_ = docs.Close()
		return nil, err
	}

	slog.Info("database opened", "vectors", opts.VectorPath, "documents", opts.DocumentPath,
		"dim", opts.Dimension, "rows", vecs.Count(), "index", opts.IndexKind)
	return db, nil
}

// reconcile checks the vector file against the document store. Records past the
// last committed row come from a batch whose store commit never happened and are
// dropped. Any other disagreement is fatal.
func (db *Database) reconcile() error {
	rows, err := db.docs.Count()
	if err != nil {
		return fmt.Errorf("%w: count rows: %w", ErrStorageUnavailable, err)
	}
	lastID, err := db.docs.LastID()
	if err != nil {
		return fmt.Errorf("%w: last id: %w", ErrStorageUnavailable, err)
	}
	if rows != lastID {
		return fmt.Errorf("%w: document ids are not contiguous: %d rows, last id %d", ErrStorageUnavailable, rows, lastID)
	}

	n := db.vecs.Count()
	if n < rows {
		return fmt.Errorf("%w: vector file holds %d records for %d rows", ErrStorageUnavailable, n, rows)
	}

	for pos := uint64(0); pos < n; pos++ {
		id, err := db.vecs.IDAt(pos)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		if id != pos+1 {
			return fmt.Errorf("%w: vector at position %d belongs to id %d", ErrStorageUnavailable, pos, id)
		}
	}

	if n > rows {
		slog.Warn("dropping vectors of an uncommitted batch", "records", n, "rows", rows)
		if err := db.vecs.Truncate(rows); err != nil {
			return fmt.Errorf("%w: truncate vector file: %w", ErrStorageUnavailable, err)
		}
	}
	return nil
}

// AddDocuments stores texts[i] from filenames[i] with vectors[i], in order, and
// returns the assigned ids. Either the whole batch lands in both stores or none
// of it does.
func (db *Database) AddDocuments(vectors []types.Vector, texts, filenames []string) ([]uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}
	if len(vectors) != len(texts) || len(texts) != len(filenames) {
		return nil, fmt.Errorf("%w: %d vectors, %d texts, %d filenames", ErrLengthMismatch, len(vectors), len(texts), len(filenames))
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	segs := make([]types.Segment, len(texts))
	for i, v := range vectors {
		if len(v) != db.opts.Dimension {
			return nil, fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), db.opts.Dimension)
		}
		if filenames[i] == "" {
			return nil, fmt.Errorf("segment %d has no filename", i)
		}
		segs[i] = types.Segment{Content: texts[i], Filename: filenames[i]}
	}

	batch, err := db.docs.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	defer batch.Rollback()

	ids, err := batch.Insert(segs)
	if err != nil {
		return nil, fmt.Errorf("insert rows: %w", err)
	}

	before := db.vecs.Count()
	if ids[0] != before+1 {
		return nil, fmt.Errorf("%w: next id %d does not follow %d vectors", ErrStorageUnavailable, ids[0], before)
	}

	if _, err := db.vecs.AppendBatch(ids, vectors); err != nil {
		return nil, fmt.Errorf("append vectors: %w", err)
	}
	if err := db.vecs.Sync(); err != nil {
		db.undoAppend(before)
		return nil, fmt.Errorf("sync vectors: %w", err)
	}
	if err := batch.Commit(); err != nil {
		db.undoAppend(before)
		return nil, fmt.Errorf("commit rows: %w", err)
	}

	for i, v := range vectors {
		db.index.Add(before+uint64(i), v)
	}

	slog.Debug("documents added", "first_id", ids[0], "count", len(ids), "vectors", db.vecs.Count())
	return ids, nil
}

func (db *Database) undoAppend(count uint64) {
	if err := db.vecs.Truncate(count); err != nil {
		// reconcile drops the records on next open
		slog.Error("failed to drop appended vectors", "count", count, "error", err)
	}
}

// Search returns up to k stored segments nearest to query, closest first.
func (db *Database) Search(query types.Vector, k int) ([]types.Hit, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrClosed
	}
	if len(query) != db.opts.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(query), db.opts.Dimension)
	}

	hits := []types.Hit{}
	for _, nb := range db.index.Search(query, k) {
		id := nb.Pos + 1
		row, err := db.docs.GetRow(id)
		if err != nil {
			return nil, fmt.Errorf("load row %d: %w", id, err)
		}
		if row == nil {
			slog.Warn("vector has no document row, skipping", "position", nb.Pos, "id", id)
			continue
		}
		hits = append(hits, types.Hit{ID: id, Content: row.Content, Filename: row.Filename, Distance: nb.Dist})
	}
	return hits, nil
}

// HasFilename reports whether any segment of name was stored.
func (db *Database) HasFilename(name string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return false, ErrClosed
	}
	return db.docs.HasFilename(name)
}

// Files lists the filename ledger.
func (db *Database) Files() ([]types.FileEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrClosed
	}
	return db.docs.Filenames()
}

func (db *Database) Stats() (Stats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return Stats{}, ErrClosed
	}
	rows, err := db.docs.Count()
	if err != nil {
		return Stats{}, err
	}
	files, err := db.docs.Filenames()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Dimension: db.opts.Dimension,
		Rows:      rows,
		Vectors:   db.vecs.Count(),
		Files:     len(files),
		IndexKind: db.opts.IndexKind,
	}, nil
}

// Dimension returns the configured vector dimension.
func (db *Database) Dimension() int {
	return db.opts.Dimension
}

// Backup writes a consistent copy of both stores into dir.
func (db *Database) Backup(dir string) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return ErrClosed
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := db.vecs.Snapshot(filepath.Join(dir, VectorFile)); err != nil {
		return fmt.Errorf("snapshot vectors: %w", err)
	}
	if err := db.docs.Backup(filepath.Join(dir, DocumentFile)); err != nil {
		return fmt.Errorf("backup documents: %w", err)
	}
	return nil
}

// Close releases the database. A shared instance is only closed when its last
// holder releases it.
func (db *Database) Close() error {
	if !release(db) {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	return errors.Join(db.vecs.Close(), db.docs.Close())
}

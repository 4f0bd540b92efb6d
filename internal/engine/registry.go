package engine

import (
	"fmt"
	"path/filepath"
	"sync"
)

// registry holds the one live Database per pair of paths in this process.
var registry = struct {
	mu  sync.Mutex
	dbs map[string]*Database
}{dbs: make(map[string]*Database)}

func registryKey(opts Options) (string, error) {
	v, err := filepath.Abs(opts.VectorPath)
	if err != nil {
		return "", err
	}
	d, err := filepath.Abs(opts.DocumentPath)
	if err != nil {
		return "", err
	}
	return v + "|" + d, nil
}

// OpenShared returns the process-wide Database for opts' paths, opening it on
// first use. Every call must be matched by exactly one Close; the handle is
// shared, so a repeated Close releases another holder's reference.
func OpenShared(opts Options) (*Database, error) {
	key, err := registryKey(opts)
	if err != nil {
		return nil, err
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if db, ok := registry.dbs[key]; ok {
		if db.opts.Dimension != opts.Dimension {
			return nil, fmt.Errorf("%w: %s already open with dim %d, requested %d", ErrDimensionMismatch, key, db.opts.Dimension, opts.Dimension)
		}
		db.refs++
		return db, nil
	}

	db, err := Open(opts)
	if err != nil {
		return nil, err
	}
	db.key = key
	db.refs = 1
	registry.dbs[key] = db
	return db, nil
}

// release drops one reference and reports whether the caller should close db.
func release(db *Database) bool {
	if db.key == "" {
		return true
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if db.refs > 1 {
		db.refs--
		return false
	}
	db.refs = 0
	if registry.dbs[db.key] == db {
		delete(registry.dbs, db.key)
	}
	return true
}

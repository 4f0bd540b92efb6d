package storage

import "github.com/misranishchay/rag-architecture-implementation-app/internal/types"

// VectorStore defines the interface for storing and retrieving raw vectors.
// Every record carries the id of the document row it belongs to.
type VectorStore interface {
	// AppendBatch adds records in order and returns the position of the first one.
	// Nothing is written if any vector has the wrong dimension.
	AppendBatch(ids []uint64, vectors []types.Vector) (uint64, error)

	// Get retrieves a vector by its position.
	Get(pos uint64) (types.Vector, error)

	// IDAt returns the row id stored with the record at pos.
	IDAt(pos uint64) (uint64, error)

	// ForEach calls fn for every record in position order until fn returns false.
	// vec is only valid during the call.
	ForEach(fn func(pos uint64, vec types.Vector) bool)

	// Count returns the number of vectors in the store.
	Count() uint64

	// Dim returns the fixed vector dimension.
	Dim() int

	// Sync flushes appended records to stable storage.
	Sync() error

	// Truncate drops every record at position >= count.
	Truncate(count uint64) error

	// Close flushes and closes the store.
	Close() error
}

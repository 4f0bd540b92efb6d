package engine

import (
	"errors"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/storage"
)

var (
	// ErrDimensionMismatch: a vector's length differs from the configured dimension.
	ErrDimensionMismatch = storage.ErrDimensionMismatch

	// ErrLengthMismatch: vectors, texts and filenames passed to AddDocuments differ in length.
	ErrLengthMismatch = errors.New("vectors, texts and filenames length mismatch")

	// ErrStorageUnavailable: the persistence files cannot be opened or do not agree
	// with each other.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrProviderFailure: the embedding or answer provider failed after its own retries.
	ErrProviderFailure = errors.New("provider failure")

	ErrClosed = errors.New("database closed")
)

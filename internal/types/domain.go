package types

import "time"

// Vector represents a fixed-dimension float32 embedding.
type Vector []float32

// Segment is a slice of a document's text waiting to be stored.
type Segment struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// DocumentRow is a stored segment. ID n is the n-th row ever inserted and its
// vector lives at index position n-1.
type DocumentRow struct {
	ID       uint64 `json:"id"`
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// FileEntry is one record of the filename ledger.
type FileEntry struct {
	Filename   string    `json:"filename"`
	FirstID    uint64    `json:"first_id"`
	Segments   int       `json:"segments"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Hit is a search result resolved to its document row.
type Hit struct {
	ID       uint64  `json:"id"`
	Content  string  `json:"content"`
	Filename string  `json:"filename"`
	Distance float32 `json:"distance"`
}

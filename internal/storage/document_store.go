package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

var (
	bucketDocs  = []byte("documents")
	bucketFiles = []byte("files")
)

// BoltDocumentStore keeps document rows keyed by a big-endian uint64 id and the
// filename ledger. Ids come from the documents bucket sequence, so a rolled back
// batch never consumes ids.
type BoltDocumentStore struct {
	db *bbolt.DB
}

func NewBoltDocumentStore(path string) (*BoltDocumentStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocs); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltDocumentStore{db: db}, nil
}

func idKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}

func (s *BoltDocumentStore) HasFilename(name string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketFiles).Get([]byte(name)) != nil
		return nil
	})
	return found, err
}

// InsertSegments stores segments in order and returns their ids.
func (s *BoltDocumentStore) InsertSegments(segments []types.Segment) ([]uint64, error) {
	batch, err := s.Begin()
	if err != nil {
		return nil, err
	}
	ids, err := batch.Insert(segments)
	if err != nil {
		_ = batch.Rollback()
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Begin opens a write transaction. Rows inserted through it stay invisible to
// readers until Commit. Only one batch can be open at a time.
func (s *BoltDocumentStore) Begin() (*PendingBatch, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &PendingBatch{tx: tx}, nil
}

func (s *BoltDocumentStore) GetRow(id uint64) (*types.DocumentRow, error) {
	var row *types.DocumentRow
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get(idKey(id))
		if data == nil {
			return nil
		}
		row = &types.DocumentRow{}
		return json.Unmarshal(data, row)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *BoltDocumentStore) GetContent(id uint64) (string, bool, error) {
	row, err := s.GetRow(id)
	if err != nil || row == nil {
		return "", false, err
	}
	return row.Content, true, nil
}

// Count returns the number of stored rows.
func (s *BoltDocumentStore) Count() (uint64, error) {
	var n uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = uint64(tx.Bucket(bucketDocs).Stats().KeyN)
		return nil
	})
	return n, err
}

// LastID returns the highest stored id, or 0 for an empty store.
func (s *BoltDocumentStore) LastID() (uint64, error) {
	var id uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(bucketDocs).Cursor().Last()
		if k != nil {
			id = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return id, err
}

// Filenames lists the ledger in filename order.
func (s *BoltDocumentStore) Filenames() ([]types.FileEntry, error) {
	var out []types.FileEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var e types.FileEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func (s *BoltDocumentStore) Close() error {
	return s.db.Close()
}

// PendingBatch is an open write transaction on the document store.
type PendingBatch struct {
	tx   *bbolt.Tx
	done bool
}

var errBatchDone = errors.New("batch already committed or rolled back")

// Insert assigns the next ids to segments, in order, and records each filename
// in the ledger.
func (b *PendingBatch) Insert(segments []types.Segment) ([]uint64, error) {
	if b.done {
		return nil, errBatchDone
	}
	docs := b.tx.Bucket(bucketDocs)
	files := b.tx.Bucket(bucketFiles)
	now := time.Now().UTC()

	ids := make([]uint64, 0, len(segments))
	for _, seg := range segments {
		id, err := docs.NextSequence()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(types.DocumentRow{ID: id, Content: seg.Content, Filename: seg.Filename})
		if err != nil {
			return nil, err
		}
		if err := docs.Put(idKey(id), data); err != nil {
			return nil, fmt.Errorf("put row %d: %w", id, err)
		}

		entry := types.FileEntry{Filename: seg.Filename, FirstID: id, IngestedAt: now}
		if existing := files.Get([]byte(seg.Filename)); existing != nil {
			if err := json.Unmarshal(existing, &entry); err != nil {
				return nil, err
			}
		}
		entry.Segments++
		data, err = json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		if err := files.Put([]byte(seg.Filename), data); err != nil {
			return nil, fmt.Errorf("put ledger entry %q: %w", seg.Filename, err)
		}

		ids = append(ids, id)
	}
	return ids, nil
}

func (b *PendingBatch) Commit() error {
	if b.done {
		return errBatchDone
	}
	b.done = true
	return b.tx.Commit()
}

// Rollback discards the batch. It is a no-op after Commit.
func (b *PendingBatch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	return b.tx.Rollback()
}

// Backup writes a consistent copy of the database file to path.
func (s *BoltDocumentStore) Backup(path string) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

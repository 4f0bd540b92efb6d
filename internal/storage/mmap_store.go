package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

const (
	vectorSize = 4 // float32 is 4 bytes
	idSize     = 8 // uint64 row id stored in front of each vector

	// File header (v2):
	//   0..7   magic "VOXVEC02"
	//   8..15  dim (uint64)
	//   16..23 count (uint64)
	// followed by count records of { id uint64, dim x float32 }.
	HeaderSize = 24

	initialCapacity = 1024
)

var fileMagic = [8]byte{'V', 'O', 'X', 'V', 'E', 'C', '0', '2'}

// ErrDimensionMismatch is returned when a vector does not have the store's dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrCorruptVectorFile is returned when the vector file cannot be trusted.
var ErrCorruptVectorFile = errors.New("corrupt vector file")

// MmapVectorStore implements VectorStore using memory-mapped files.
type MmapVectorStore struct {
	filename   string
	file       *os.File
	mu         sync.RWMutex
	mapped     []byte
	dim        int
	count      uint64
	mapHandle  uintptr // windows only
	viewHandle uintptr // windows only
}

func NewMmapVectorStore(filename string, dim int) (*MmapVectorStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dim: %d", dim)
	}

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	store := &MmapVectorStore{
		filename: filename,
		file:     f,
		dim:      dim,
	}

	if info.Size() == 0 {
		if err := store.initNew(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if err := store.remap(); err != nil {
		_ = f.Close()
		return nil, err
	}

	onDiskDim, onDiskCount, err := store.readAndValidateHeader()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// dim is stored in the file and must match the configured dim.
	if int(onDiskDim) != store.dim {
		_ = store.Close()
		return nil, fmt.Errorf("%w: file dim=%d, requested dim=%d (delete %s to reset)", ErrDimensionMismatch, onDiskDim, store.dim, filename)
	}

	if need := store.offset(onDiskCount); need > int64(len(store.mapped)) {
		_ = store.Close()
		return nil, fmt.Errorf("%w: header count %d needs %d bytes, file has %d", ErrCorruptVectorFile, onDiskCount, need, len(store.mapped))
	}
	store.count = onDiskCount

	return store, nil
}

func (s *MmapVectorStore) recordSize() int64 {
	return int64(idSize + s.dim*vectorSize)
}

// offset returns the byte offset of the record at pos.
func (s *MmapVectorStore) offset(pos uint64) int64 {
	return HeaderSize + int64(pos)*s.recordSize()
}

func (s *MmapVectorStore) initNew() error {
	if err := s.resize(s.offset(initialCapacity)); err != nil {
		return err
	}
	if err := s.remap(); err != nil {
		return err
	}
	s.writeHeader(uint64(s.dim), 0)
	s.count = 0
	return s.sync()
}

func (s *MmapVectorStore) readAndValidateHeader() (dim uint64, count uint64, err error) {
	if len(s.mapped) < HeaderSize {
		return 0, 0, fmt.Errorf("%w: too small for header: %d < %d", ErrCorruptVectorFile, len(s.mapped), HeaderSize)
	}

	var mg [8]byte
	copy(mg[:], s.mapped[:8])
	if mg != fileMagic {
		return 0, 0, fmt.Errorf("%w: magic mismatch in %s", ErrCorruptVectorFile, s.filename)
	}

	dim = binary.LittleEndian.Uint64(s.mapped[8:16])
	count = binary.LittleEndian.Uint64(s.mapped[16:24])
	if dim == 0 {
		return 0, 0, fmt.Errorf("%w: dim=0 in %s", ErrCorruptVectorFile, s.filename)
	}
	return dim, count, nil
}

func (s *MmapVectorStore) writeHeader(dim uint64, count uint64) {
	copy(s.mapped[:8], fileMagic[:])
	binary.LittleEndian.PutUint64(s.mapped[8:16], dim)
	binary.LittleEndian.PutUint64(s.mapped[16:24], count)
}

func (s *MmapVectorStore) resize(newSize int64) error {
	if err := s.munmap(); err != nil {
		return err
	}
	return s.file.Truncate(newSize)
}

func (s *MmapVectorStore) remap() error {
	// Always drop the current view first; mapping twice leaks handles on Windows.
	if err := s.munmap(); err != nil {
		return err
	}

	fi, err := s.file.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()
	if size == 0 {
		return nil
	}

	return s.mmap(size)
}

// grow makes room for n more records. Caller holds the write lock.
func (s *MmapVectorStore) grow(n uint64) error {
	requiredSize := s.offset(s.count + n)
	if requiredSize <= int64(len(s.mapped)) {
		return nil
	}

	// Grow by 50% or at least required size
	newSize := int64(len(s.mapped)) + int64(len(s.mapped))/2
	if newSize < requiredSize {
		newSize = requiredSize
	}

	if err := s.sync(); err != nil {
		return fmt.Errorf("sync before resize failed: %w", err)
	}
	if err := s.resize(newSize); err != nil {
		return fmt.Errorf("resize failed: %w", err)
	}
	if err := s.remap(); err != nil {
		return fmt.Errorf("remap failed: %w", err)
	}
	s.writeHeader(uint64(s.dim), s.count)
	return nil
}

// Append adds a single record and returns its position.
func (s *MmapVectorStore) Append(id uint64, vector types.Vector) (uint64, error) {
	return s.AppendBatch([]uint64{id}, []types.Vector{vector})
}

func (s *MmapVectorStore) AppendBatch(ids []uint64, vectors []types.Vector) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) != len(vectors) {
		return 0, fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != s.dim {
			return 0, fmt.Errorf("%w: vector %d expected %d, got %d", ErrDimensionMismatch, i, s.dim, len(v))
		}
	}

	first := s.count
	if len(vectors) == 0 {
		return first, nil
	}

	if err := s.grow(uint64(len(vectors))); err != nil {
		return 0, err
	}

	for i, v := range vectors {
		off := s.offset(s.count + uint64(i))
		binary.LittleEndian.PutUint64(s.mapped[off:], ids[i])
		off += idSize
		for j, f := range v {
			binary.LittleEndian.PutUint32(s.mapped[off+int64(j)*vectorSize:], math.Float32bits(f))
		}
	}

	// Records are written before the count that makes them visible.
	s.count += uint64(len(vectors))
	s.writeHeader(uint64(s.dim), s.count)

	return first, nil
}

func (s *MmapVectorStore) Get(pos uint64) (types.Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pos >= s.count {
		return nil, fmt.Errorf("index out of bounds: %d >= %d", pos, s.count)
	}

	vec := make(types.Vector, s.dim)
	s.readVector(pos, vec)
	return vec, nil
}

func (s *MmapVectorStore) readVector(pos uint64, dst types.Vector) {
	off := s.offset(pos) + idSize
	for i := 0; i < s.dim; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.mapped[off+int64(i)*vectorSize:]))
	}
}

func (s *MmapVectorStore) IDAt(pos uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pos >= s.count {
		return 0, fmt.Errorf("index out of bounds: %d >= %d", pos, s.count)
	}
	return binary.LittleEndian.Uint64(s.mapped[s.offset(pos):]), nil
}

func (s *MmapVectorStore) ForEach(fn func(pos uint64, vec types.Vector) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := make(types.Vector, s.dim)
	for pos := uint64(0); pos < s.count; pos++ {
		s.readVector(pos, buf)
		if !fn(pos, buf) {
			return
		}
	}
}

func (s *MmapVectorStore) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *MmapVectorStore) Dim() int {
	return s.dim
}

func (s *MmapVectorStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync()
}

func (s *MmapVectorStore) sync() error {
	if err := s.flush(); err != nil {
		return fmt.Errorf("flush mapping: %w", err)
	}
	return s.file.Sync()
}

func (s *MmapVectorStore) Truncate(count uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if count > s.count {
		return fmt.Errorf("cannot truncate to %d, store holds %d", count, s.count)
	}
	s.count = count
	s.writeHeader(uint64(s.dim), s.count)
	return s.sync()
}

// WriteTo writes the header and committed records, without spare capacity.
// The output opens with NewMmapVectorStore.
func (s *MmapVectorStore) WriteTo(w io.Writer) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := w.Write(s.mapped[:s.offset(s.count)])
	return int64(n), err
}

// Snapshot writes a compact copy of the store to path, replacing it atomically.
func (s *MmapVectorStore) Snapshot(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := s.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *MmapVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var syncErr error
	if s.mapped != nil {
		syncErr = s.sync()
	}
	_ = s.munmap()
	if err := s.file.Close(); err != nil {
		return err
	}
	return syncErr
}

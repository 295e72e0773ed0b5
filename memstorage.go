package buckettree

import (
	"context"
	"fmt"
)

// MemoryStorage is an in-memory Storage backed by a single byte slice. It
// is the Storage implementation used by tests and by callers building a
// tree entirely in memory, analogous to the teacher's in-memory test
// doubles that stand in for a blob-backed ObjectReader (objectstore.go).
type MemoryStorage struct {
	buf []byte
}

// NewMemoryStorage wraps buf directly: writes to buf are visible through
// the returned Storage, and vice versa via Read.
func NewMemoryStorage(buf []byte) *MemoryStorage {
	return &MemoryStorage{buf: buf}
}

// Read copies len(dst) bytes starting at offset out of the backing
// slice.
func (m *MemoryStorage) Read(ctx context.Context, offset int64, dst []byte) error {
	if offset < 0 || offset > int64(len(m.buf)) {
		return fmt.Errorf("%w: offset %d out of [0, %d]", ErrStorageFailure, offset, len(m.buf))
	}
	end := offset + int64(len(dst))
	if end > int64(len(m.buf)) {
		return fmt.Errorf("%w: read [%d, %d) exceeds storage size %d", ErrStorageFailure, offset, end, len(m.buf))
	}
	copy(dst, m.buf[offset:end])
	return nil
}

// Size returns the length of the backing slice.
func (m *MemoryStorage) Size(ctx context.Context) (int64, error) {
	return int64(len(m.buf)), nil
}

// Bytes returns the backing slice, for tests that want to mutate storage
// out from under a tree (e.g. to exercise InvalidateCache).
func (m *MemoryStorage) Bytes() []byte {
	return m.buf
}

package buckettree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_ReadAndSize(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	s := NewMemoryStorage(buf)

	sz, err := s.Size(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, len(buf), sz)

	dst := make([]byte, 3)
	require.NoError(t, s.Read(context.Background(), 2, dst))
	assert.Equal(t, []byte{3, 4, 5}, dst)
}

func TestMemoryStorage_ReadOutOfRange(t *testing.T) {
	s := NewMemoryStorage(make([]byte, 4))

	err := s.Read(context.Background(), 0, make([]byte, 5))
	assert.ErrorIs(t, err, ErrStorageFailure)

	err = s.Read(context.Background(), 10, make([]byte, 1))
	assert.ErrorIs(t, err, ErrStorageFailure)
}

func TestMemoryStorage_BytesAliasesBacking(t *testing.T) {
	buf := make([]byte, 4)
	s := NewMemoryStorage(buf)
	s.Bytes()[0] = 0xff
	assert.Equal(t, byte(0xff), buf[0])
}

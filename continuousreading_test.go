package buckettree_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-buckettree"
	"github.com/datatrails/go-buckettree/buckettreetest"
)

// continuousTestEntry implements buckettree.ContinuousEntry over a
// 24-byte record: va(8) physical_offset(8) continuous_flag(1).
type continuousTestEntry struct {
	va       int64
	physical int64
	cont     bool
}

func (e continuousTestEntry) VirtualAddress() int64 { return e.va }
func (e continuousTestEntry) PhysicalOffset() int64 { return e.physical }
func (e continuousTestEntry) IsContinuous() bool    { return e.cont }

const continuousEntrySize = 24

func encodeContinuousEntry(buf []byte, e continuousTestEntry) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.va))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.physical))
	if e.cont {
		buf[16] = 1
	}
}

func decodeContinuousEntry(buf []byte) continuousTestEntry {
	return continuousTestEntry{
		va:       int64(binary.LittleEndian.Uint64(buf[0:8])),
		physical: int64(binary.LittleEndian.Uint64(buf[8:16])),
		cont:     buf[16] != 0,
	}
}

// TestScanContinuousReading_ContiguousRun covers spec.md §8 scenario F:
// five entries with contiguous physical offsets and equal virtual spans
// fold into a single bulk read.
func TestScanContinuousReading_ContiguousRun(t *testing.T) {
	const spanSize = 10
	const numEntries = 6 // one more than the run, to bound the last entry's span

	entries := make([]buckettreetest.Entry, numEntries)
	for i := 0; i < numEntries; i++ {
		e := continuousTestEntry{va: int64(i) * spanSize, physical: int64(i) * spanSize, cont: true}
		entries[i] = buckettreetest.Entry{VA: e.va, Payload: encodedContinuousPayload(e)}
	}

	cfg := buckettreetest.Config{
		NodeSize: testNodeSize, EntrySize: continuousEntrySize,
		Entries: entries, EndOffset: int64(numEntries) * spanSize,
	}
	tree, _ := buildTree(t, cfg)

	v := buckettree.NewVisitor()
	require.NoError(t, tree.Find(context.Background(), v, 0))

	info, err := buckettree.ScanContinuousReading(v, decodeContinuousEntry, 0, 5*spanSize)
	require.NoError(t, err)

	assert.True(t, info.CanDo())
	assert.Equal(t, int64(5*spanSize), info.ReadSize())
	assert.Equal(t, int32(4), info.SkipCount())
	assert.True(t, info.IsDone())
}

// TestScanContinuousReading_StopsAtDiscontinuity covers the same
// invariant's upper bound (§8 invariant 5) when a later entry breaks the
// physical run: read_size must never exceed the requested size, and here
// it must also stop short of it.
func TestScanContinuousReading_StopsAtDiscontinuity(t *testing.T) {
	const spanSize = 10
	entries := []buckettreetest.Entry{
		{VA: 0, Payload: encodedContinuousPayload(continuousTestEntry{physical: 0, cont: true})},
		{VA: spanSize, Payload: encodedContinuousPayload(continuousTestEntry{physical: spanSize, cont: true})},
		{VA: 2 * spanSize, Payload: encodedContinuousPayload(continuousTestEntry{physical: 999, cont: true})}, // breaks the run
		{VA: 3 * spanSize, Payload: encodedContinuousPayload(continuousTestEntry{physical: 3 * spanSize, cont: true})},
	}

	cfg := buckettreetest.Config{
		NodeSize: testNodeSize, EntrySize: continuousEntrySize,
		Entries: entries, EndOffset: int64(len(entries)) * spanSize,
	}
	tree, _ := buildTree(t, cfg)

	v := buckettree.NewVisitor()
	require.NoError(t, tree.Find(context.Background(), v, 0))

	info, err := buckettree.ScanContinuousReading(v, decodeContinuousEntry, 0, 3*spanSize)
	require.NoError(t, err)

	assert.LessOrEqual(t, info.ReadSize(), int64(3*spanSize))
	assert.Equal(t, int64(2*spanSize), info.ReadSize())
	assert.False(t, info.IsDone())
}

func encodedContinuousPayload(e continuousTestEntry) []byte {
	rec := make([]byte, continuousEntrySize)
	encodeContinuousEntry(rec, e)
	return rec[8:]
}

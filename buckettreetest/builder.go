// Package buckettreetest assembles valid (and deliberately invalid) raw
// node/entry storage pairs for exercising buckettree.BucketTree in
// tests, mirroring the teacher's sibling mmrtesting package and its
// TestContext builder (mmrtesting/testcontext.go).
package buckettreetest

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/datatrails/go-buckettree"
)

// Entry is one fixed-size record a Builder lays out into an entry set.
// VA is encoded as the entry's leading 8 bytes; Payload fills the
// remainder of the entry (entry_size - 8 bytes), truncated or
// zero-padded to fit.
type Entry struct {
	VA      int64
	Payload []byte
}

// Config describes the tree a Builder assembles.
type Config struct {
	NodeSize  int64
	EntrySize int64
	Entries   []Entry // must be sorted ascending by VA
	EndOffset int64   // GetEnd(); if zero, defaults to the last entry's VA + 1
}

// Builder assembles raw node storage and entry storage bytes for a
// Config, laying out the L1/L2 offset nodes and leaf entry sets the same
// way buckettree.BucketTree.Initialize expects to find them. Build-id
// stamping (the Header's reserved field) uses a fresh uuid.UUID per
// Builder the way the teacher stamps test fixtures with a generated
// identity (storage/prefixeduuid.go).
type Builder struct {
	cfg     Config
	buildID uuid.UUID
}

// NewBuilder creates a Builder for cfg.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, buildID: uuid.New()}
}

// BuildID returns the UUID stamped into this Builder's fixtures.
func (b *Builder) BuildID() uuid.UUID {
	return b.buildID
}

// BuildHeader encodes the top-level Header a caller would store
// alongside the node/entry storage this Builder produces. BucketTree
// itself never reads this (entry_count reaches Initialize as an
// explicit parameter, per spec.md §4.1), but callers that persist their
// own container format around the index can use it, and tests use it to
// exercise Header's own decode/verify path. The first 4 bytes of the
// Builder's uuid are stamped into the reserved field, purely so a
// fixture can be traced back to the Builder call that produced it.
func (b *Builder) BuildHeader() []byte {
	buf := make([]byte, buckettree.HeaderSize)
	h := buckettree.FormatHeader(int32(len(b.cfg.Entries)))
	h.Reserved = binary.LittleEndian.Uint32(b.buildID[0:4])
	h.Encode(buf)
	return buf
}

// Build lays out node storage and entry storage for cfg and returns them
// wrapped as buckettree.Storage, ready to pass to BucketTree.Initialize.
func (b *Builder) Build() (nodeStorage, entryStorage *buckettree.MemoryStorage, err error) {
	cfg := b.cfg
	entryCount := int32(len(cfg.Entries))

	nodeBuf, entryBuf, err := layout(cfg.NodeSize, cfg.EntrySize, entryCount, cfg.Entries)
	if err != nil {
		return nil, nil, err
	}

	return buckettree.NewMemoryStorage(nodeBuf), buckettree.NewMemoryStorage(entryBuf), nil
}

// End returns the tree's end offset implied by cfg, for passing to
// BucketTree.Reseat after Initialize.
func (cfg Config) End() int64 {
	if cfg.EndOffset != 0 {
		return cfg.EndOffset
	}
	if len(cfg.Entries) == 0 {
		return 0
	}
	return cfg.Entries[len(cfg.Entries)-1].VA + 1
}

const nodeHeaderSize = buckettree.NodeHeaderSize

func divideUp(n, d int32) int32 {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// nodeL2CountOf duplicates buckettree's internal geometry formula
// (geometry.go) since Builder lives outside the buckettree package and
// must agree with it on node counts byte-for-byte.
func nodeL2CountOf(offsetsPerNode, entrySetCount int32) int32 {
	if entrySetCount <= offsetsPerNode {
		return 0
	}
	nodeL2Count := divideUp(entrySetCount, offsetsPerNode)
	if nodeL2Count > offsetsPerNode {
		return nodeL2Count
	}
	return divideUp(entrySetCount-(offsetsPerNode-(nodeL2Count-1)), offsetsPerNode)
}

func putInt64(buf []byte, v int64) {
	binary.LittleEndian.PutUint64(buf, uint64(v))
}

func layout(nodeSize, entrySize int64, entryCount int32, entries []Entry) ([]byte, []byte, error) {
	entriesPerNode := int32((nodeSize - nodeHeaderSize) / entrySize)
	offsetsPerNode := int32((nodeSize - nodeHeaderSize) / 8)

	entrySetCount := divideUp(entryCount, entriesPerNode)
	if entrySetCount == 0 {
		return nil, nil, nil
	}
	nodeL2Count := nodeL2CountOf(offsetsPerNode, entrySetCount)

	entryBuf := make([]byte, int64(entrySetCount)*nodeSize)
	setStartVA := make([]int64, entrySetCount)

	for s := int32(0); s < entrySetCount; s++ {
		lo := int(s) * int(entriesPerNode)
		hi := lo + int(entriesPerNode)
		if hi > len(entries) {
			hi = len(entries)
		}
		count := hi - lo

		nodeOff := int64(s) * nodeSize
		h := buckettree.NodeHeader{Index: s, Count: int32(count), Offset: entries[lo].VA}
		h.Encode(entryBuf[nodeOff : nodeOff+nodeHeaderSize])
		setStartVA[s] = entries[lo].VA

		for k := 0; k < count; k++ {
			e := entries[lo+k]
			entOff := nodeOff + nodeHeaderSize + int64(k)*entrySize
			rec := entryBuf[entOff : entOff+entrySize]
			putInt64(rec[0:8], e.VA)
			copy(rec[8:], e.Payload)
		}
	}

	var nodeBuf []byte
	if nodeL2Count == 0 {
		nodeBuf = make([]byte, nodeSize)
		h := buckettree.NodeHeader{Index: 0, Count: entrySetCount, Offset: 0}
		h.Encode(nodeBuf[0:nodeHeaderSize])
		for s := int32(0); s < entrySetCount; s++ {
			off := nodeHeaderSize + int64(s)*8
			putInt64(nodeBuf[off:off+8], setStartVA[s])
		}
		return nodeBuf, entryBuf, nil
	}

	directCount := offsetsPerNode - nodeL2Count
	nodeBuf = make([]byte, int64(1+nodeL2Count)*nodeSize)

	l1 := nodeBuf[0:nodeSize]
	l1Header := buckettree.NodeHeader{Index: 0, Count: nodeL2Count, Offset: 0}
	l1Header.Encode(l1[0:nodeHeaderSize])
	for s := int32(0); s < directCount; s++ {
		off := nodeHeaderSize + int64(s)*8
		putInt64(l1[off:off+8], setStartVA[s])
	}

	remaining := entrySetCount - directCount
	for n := int32(0); n < nodeL2Count; n++ {
		count := offsetsPerNode
		if left := remaining - n*offsetsPerNode; left < count {
			count = left
		}
		firstSet := directCount + n*offsetsPerNode

		off := nodeHeaderSize + int64(directCount+n)*8
		putInt64(l1[off:off+8], setStartVA[firstSet])

		l2 := nodeBuf[int64(1+n)*nodeSize : int64(2+n)*nodeSize]
		l2Header := buckettree.NodeHeader{Index: n, Count: count, Offset: setStartVA[firstSet]}
		l2Header.Encode(l2[0:nodeHeaderSize])
		for i := int32(0); i < count; i++ {
			off := nodeHeaderSize + int64(i)*8
			putInt64(l2[off:off+8], setStartVA[firstSet+i])
		}
	}

	return nodeBuf, entryBuf, nil
}

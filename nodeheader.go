package buckettree

import (
	"encoding/binary"
	"fmt"
)

// NodeHeaderSize is the fixed on-disk size of NodeHeader, in bytes.
const NodeHeaderSize = 16

// nodeLevel distinguishes what a NodeHeader's count/offset mean, purely
// for the purposes of Verify: an L1/L2 offset node counts pointers, a
// leaf entry set counts entries.
type nodeLevel int

const (
	levelL1 nodeLevel = iota
	levelL2
	levelLeafSet
)

// NodeHeader is present at the start of every node: the L1 node, each L2
// node, and each entry set. Layout (little-endian): index(4) count(4)
// offset(8).
type NodeHeader struct {
	Index  int32
	Count  int32
	Offset int64
}

// DecodeNodeHeader parses a NodeHeader from its on-disk representation.
// buf must be at least NodeHeaderSize bytes.
func DecodeNodeHeader(buf []byte) (NodeHeader, error) {
	if len(buf) < NodeHeaderSize {
		return NodeHeader{}, fmt.Errorf("%w: node header buffer too small (%d < %d)", ErrInvalidNodeHeader, len(buf), NodeHeaderSize)
	}
	return NodeHeader{
		Index:  int32(binary.LittleEndian.Uint32(buf[0:4])),
		Count:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		Offset: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

// Encode writes the on-disk representation of h into buf, which must be
// at least NodeHeaderSize bytes.
func (h NodeHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Index))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Count))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Offset))
}

// verify checks index and count against the expected node index and the
// fan-out ceiling for level. offset is not range-checked here; the tree
// and visitor check offset monotonicity/bounds against their own state
// once more than one node has been read.
func (h NodeHeader) verify(expectedIndex int32, level nodeLevel, fanout int32) error {
	if h.Index != expectedIndex {
		return fmt.Errorf("%w: index %d != expected %d", ErrInvalidNodeHeader, h.Index, expectedIndex)
	}
	if h.Count < 0 || h.Count > fanout {
		return fmt.Errorf("%w: count %d out of range [0, %d]", ErrInvalidNodeHeader, h.Count, fanout)
	}
	switch level {
	case levelL1:
		// The L1 node may legitimately have Count == 0 only when the
		// tree itself is empty; the caller (tree.Initialize) enforces
		// that distinction since it alone knows entry_count.
	case levelL2, levelLeafSet:
		// No additional structural constraint beyond count <= fanout.
	}
	return nil
}

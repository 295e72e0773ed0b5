package buckettree

import (
	"context"
	"fmt"
)

// BucketTree owns the two backing storages (node storage, entry storage)
// and the pinned L1 node, and answers point queries by initializing a
// Visitor. See doc.go and spec.md for the overall design.
type BucketTree struct {
	nodeStorage  Storage
	entryStorage Storage

	geometry geometry

	nodeL1 nodeBuffer

	startOffset int64
	endOffset   int64

	opts treeOptions
}

// IsInitialized reports whether Initialize has completed successfully.
func (t *BucketTree) IsInitialized() bool {
	return t.geometry.nodeSize > 0
}

// IsEmpty reports whether the tree has zero entries.
func (t *BucketTree) IsEmpty() bool {
	return t.geometry.entryCount == 0
}

// GetEntryCount returns the total number of entries in the tree.
func (t *BucketTree) GetEntryCount() int32 {
	return t.geometry.entryCount
}

// GetStart returns the smallest virtual address the tree covers.
func (t *BucketTree) GetStart() int64 { return t.startOffset }

// GetEnd returns the address one past the largest virtual address the
// tree covers.
func (t *BucketTree) GetEnd() int64 { return t.endOffset }

// GetSize returns GetEnd() - GetStart().
func (t *BucketTree) GetSize() int64 { return t.endOffset - t.startOffset }

// Includes reports whether offset lies in [start, end).
func (t *BucketTree) Includes(offset int64) bool {
	return t.startOffset <= offset && offset < t.endOffset
}

// IncludesRange reports whether [offset, offset+size) lies entirely
// within [start, end), without overflow.
func (t *BucketTree) IncludesRange(offset, size int64) bool {
	if size <= 0 {
		return false
	}
	if offset < t.startOffset {
		return false
	}
	return size <= t.endOffset-offset
}

// Initialize validates the geometry, reads and verifies the pinned L1
// node, and determines the tree's start offset from the first entry
// set's header. end_offset is supplied separately via Reseat, mirroring
// the original's two-constructor split (SPEC_FULL.md item 1).
func (t *BucketTree) Initialize(
	ctx context.Context,
	nodeStorage, entryStorage Storage,
	nodeSize, entrySize int64, entryCount int32,
	opts ...Option,
) error {
	g, err := newGeometry(nodeSize, entrySize, entryCount)
	if err != nil {
		return err
	}

	options := newTreeOptions(opts...)

	if err := checkStorageSizes(ctx, nodeStorage, entryStorage, g); err != nil {
		return err
	}

	if g.entryCount == 0 {
		*t = BucketTree{
			nodeStorage:  nodeStorage,
			entryStorage: entryStorage,
			geometry:     g,
			opts:         options,
		}
		return nil
	}

	l1, startOffset, err := loadL1AndStart(ctx, nodeStorage, entryStorage, g, options.allocator)
	if err != nil {
		return err
	}

	if options.log != nil {
		options.log.Debugf("buckettree: initialized entry_count=%d entry_set_count=%d node_l2_count=%d start=%d",
			g.entryCount, g.entrySetCount, g.nodeL2Count, startOffset)
	}

	*t = BucketTree{
		nodeStorage:  nodeStorage,
		entryStorage: entryStorage,
		geometry:     g,
		nodeL1:       l1,
		startOffset:  startOffset,
		opts:         options,
	}
	return nil
}

// Reseat re-applies node_size and end_offset to a tree whose index has
// already been validated elsewhere. It is the second of the original's
// two Initialize overloads (SPEC_FULL.md item 1); it does not re-read
// storage.
func (t *BucketTree) Reseat(nodeSize int64, endOffset int64) {
	t.geometry.nodeSize = nodeSize
	t.endOffset = endOffset
}

func checkStorageSizes(ctx context.Context, nodeStorage, entryStorage Storage, g geometry) error {
	if g.entryCount == 0 {
		return nil
	}
	needNode := g.nodeStorageSize()
	gotNode, err := nodeStorage.Size(ctx)
	if err != nil {
		return fmt.Errorf("%w: node storage size: %s", ErrStorageFailure, err)
	}
	if gotNode < needNode {
		return fmt.Errorf("%w: node storage too small: have %d, need %d", ErrInvalidHeader, gotNode, needNode)
	}

	needEntry := g.entryStorageSize()
	gotEntry, err := entryStorage.Size(ctx)
	if err != nil {
		return fmt.Errorf("%w: entry storage size: %s", ErrStorageFailure, err)
	}
	if gotEntry < needEntry {
		return fmt.Errorf("%w: entry storage too small: have %d, need %d", ErrInvalidHeader, gotEntry, needEntry)
	}
	return nil
}

func loadL1AndStart(ctx context.Context, nodeStorage, entryStorage Storage, g geometry, allocator Allocator) (nodeBuffer, int64, error) {
	l1, err := newNodeBuffer(allocator, int(g.nodeSize))
	if err != nil {
		return nodeBuffer{}, 0, err
	}
	if err := readInto(ctx, nodeStorage, 0, l1.bytes()); err != nil {
		l1.release()
		return nodeBuffer{}, 0, err
	}

	l1Header, err := l1.header()
	if err != nil {
		l1.release()
		return nodeBuffer{}, 0, err
	}

	l1Fanout := g.offsetsPerNode
	if err := l1Header.verify(0, levelL1, l1Fanout); err != nil {
		l1.release()
		return nodeBuffer{}, 0, err
	}
	if !g.hasL2() && l1Header.Count != g.entrySetCount {
		l1.release()
		return nodeBuffer{}, 0, fmt.Errorf("%w: L1 count %d != entry_set_count %d with no L2 level", ErrInvalidNodeHeader, l1Header.Count, g.entrySetCount)
	}
	if g.hasL2() && (l1Header.Count <= 0 || l1Header.Count > g.offsetsPerNode) {
		l1.release()
		return nodeBuffer{}, 0, fmt.Errorf("%w: L1 count %d out of (0, %d] with L2 present", ErrInvalidNodeHeader, l1Header.Count, g.offsetsPerNode)
	}

	firstSet := make([]byte, NodeHeaderSize)
	if err := readInto(ctx, entryStorage, 0, firstSet); err != nil {
		l1.release()
		return nodeBuffer{}, 0, err
	}
	firstSetHeader, err := DecodeNodeHeader(firstSet)
	if err != nil {
		l1.release()
		return nodeBuffer{}, 0, err
	}
	if err := firstSetHeader.verify(0, levelLeafSet, g.entriesPerNode); err != nil {
		l1.release()
		return nodeBuffer{}, 0, err
	}

	return l1, firstSetHeader.Offset, nil
}

// Finalize releases the pinned L1 node. After Finalize, the tree must
// not be used again without a fresh Initialize.
func (t *BucketTree) Finalize() {
	t.nodeL1.release()
	*t = BucketTree{}
}

// InvalidateCache re-reads the pinned L1 node from node storage. Use
// this to recover from a storage layer whose own cache was invalidated
// out from under the tree. It must not run concurrently with any
// Visitor operation on the same tree (spec.md §5).
func (t *BucketTree) InvalidateCache(ctx context.Context) error {
	if !t.IsInitialized() || t.IsEmpty() {
		return nil
	}
	if err := readInto(ctx, t.nodeStorage, 0, t.nodeL1.bytes()); err != nil {
		return err
	}
	l1Header, err := t.nodeL1.header()
	if err != nil {
		return err
	}
	if err := l1Header.verify(0, levelL1, t.geometry.offsetsPerNode); err != nil {
		return err
	}
	if t.opts.log != nil {
		t.opts.log.Debugf("buckettree: invalidated L1 cache")
	}
	return nil
}

// Find initializes visitor against this tree (if not already) and
// resolves va to the entry that covers it.
func (t *BucketTree) Find(ctx context.Context, visitor *Visitor, va int64) error {
	if err := visitor.bind(t); err != nil {
		return err
	}
	return visitor.find(ctx, va)
}

func (t *BucketTree) isExistL2() bool {
	return t.geometry.hasL2()
}

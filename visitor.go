package buckettree

import (
	"context"
	"fmt"
	"sort"
)

// entrySetHeader is the decoded form of a leaf NodeHeader plus its
// derived virtual-address range, matching the original's EntrySetHeader
// union (spec.md §4.2).
type entrySetHeader struct {
	index int32
	count int32
	start int64
	end   int64
}

// Visitor is a stateful cursor over a BucketTree's entries. It performs
// at most one node-storage read and one entry-storage read per Find, and
// an additional entry-storage read only when movement crosses an entry
// set boundary (spec.md §2).
//
// A Visitor must not outlive the BucketTree it was bound to.
type Visitor struct {
	tree *BucketTree

	entrySet      []byte // current entry set's raw bytes: header + entries
	entrySetInfo  entrySetHeader
	entrySetCount int32

	entryIndex int32 // -1 means invalid

	opts    visitorOptions
	optsSet []VisitorOption
}

// NewVisitor creates an unbound Visitor. Pass it to BucketTree.Find,
// which binds it to the tree on first use.
func NewVisitor(opts ...VisitorOption) *Visitor {
	return &Visitor{entryIndex: -1, optsSet: opts}
}

// IsValid reports whether the Visitor currently refers to an entry.
func (v *Visitor) IsValid() bool {
	return v.entryIndex >= 0
}

// CanMoveNext reports whether MoveNext can succeed.
func (v *Visitor) CanMoveNext() bool {
	return v.IsValid() && (v.entryIndex+1 < v.entrySetInfo.count || v.entrySetInfo.index+1 < v.entrySetCount)
}

// CanMovePrevious reports whether MovePrevious can succeed.
func (v *Visitor) CanMovePrevious() bool {
	return v.IsValid() && (v.entryIndex > 0 || v.entrySetInfo.index > 0)
}

// Entry returns the raw bytes of the current entry. Panics (a
// PreconditionViolation in release terms; spec.md §7) if the Visitor is
// invalid.
func (v *Visitor) Entry() []byte {
	if !v.IsValid() {
		panic(fmt.Errorf("%w: Entry called on invalid Visitor", ErrPreconditionViolation))
	}
	start := NodeHeaderSize + int(v.entryIndex)*int(v.tree.geometry.entrySize)
	return v.entrySet[start : start+int(v.tree.geometry.entrySize)]
}

func (v *Visitor) bind(tree *BucketTree) error {
	if !tree.IsInitialized() {
		return fmt.Errorf("%w: tree is not initialized", ErrPreconditionViolation)
	}
	if v.tree == tree && v.entrySet != nil {
		return nil
	}
	v.tree = tree
	v.entrySetCount = tree.geometry.entrySetCount
	v.entryIndex = -1
	v.entrySet = make([]byte, tree.geometry.nodeSize)
	v.opts = newVisitorOptions(tree, v.optsSet...)
	return nil
}

// entryVAAt reads the leading 8-byte virtual address out of the entry at
// index i within the currently loaded entry set.
func (v *Visitor) entryVAAt(i int32) int64 {
	start := NodeHeaderSize + int(i)*int(v.tree.geometry.entrySize)
	buf := v.entrySet[start : start+8]
	var u uint64
	for shift := 0; shift < 8; shift++ {
		u |= uint64(buf[shift]) << (8 * shift)
	}
	return int64(u)
}

// find locates the entry set containing va, loads it, and binary
// searches it for the entry that covers va (spec.md §4.2 Step 1-3).
func (v *Visitor) find(ctx context.Context, va int64) error {
	v.entryIndex = -1

	if !v.tree.Includes(va) {
		return fmt.Errorf("%w: va=%d not in [%d, %d)", ErrInvalidOffset, va, v.tree.GetStart(), v.tree.GetEnd())
	}

	entrySetIndex, err := v.findEntrySet(ctx, va)
	if err != nil {
		return err
	}

	if err := v.loadEntrySet(ctx, entrySetIndex); err != nil {
		return err
	}

	return v.findEntryInSet(va)
}

// findEntrySet resolves va to an entry-set index using the pinned L1
// node, reading one L2 node along the way if the tree has a second
// level (spec.md §4.2 Step 1).
func (v *Visitor) findEntrySet(ctx context.Context, va int64) (int32, error) {
	g := v.tree.geometry
	l1Header, err := v.tree.nodeL1.header()
	if err != nil {
		return 0, err
	}
	l1Payload := v.tree.nodeL1.bytes()[NodeHeaderSize:]

	if !g.hasL2() {
		idx, err := lowerBoundOffsets(l1Payload, int(l1Header.Count), va)
		if err != nil {
			return 0, err
		}
		return int32(idx), nil
	}

	// The L1 payload is split: l1Header.Count is the number of trailing
	// slots that are L2 node pointers; the leading
	// (offsets_per_node - l1Header.Count) slots are direct entry-set
	// offsets (spec.md §4.2 Step 1, original's GetEntrySetIndex). Both
	// halves are populated and ascending, so a single lower bound over
	// the whole offsets_per_node slots finds the right one; the slot
	// index alone then tells us whether it landed in the direct half or
	// names an L2 node to route through.
	directCount := int(g.offsetsPerNode - l1Header.Count)

	slot, err := lowerBoundOffsets(l1Payload, int(g.offsetsPerNode), va)
	if err != nil {
		return 0, err
	}
	if slot < directCount {
		return int32(slot), nil
	}

	l2Node := int32(slot - directCount)

	l2Buf := make([]byte, g.nodeSize)
	if err := readInto(ctx, v.tree.nodeStorage, int64(1+l2Node)*g.nodeSize, l2Buf); err != nil {
		return 0, err
	}
	l2Header, err := DecodeNodeHeader(l2Buf)
	if err != nil {
		return 0, err
	}
	if err := l2Header.verify(l2Node, levelL2, g.offsetsPerNode); err != nil {
		return 0, err
	}

	offsetIndex, err := lowerBoundOffsets(l2Buf[NodeHeaderSize:], int(l2Header.Count), va)
	if err != nil {
		return 0, err
	}

	entrySetIndex := entrySetIndexForL2(g.offsetsPerNode, l1Header.Count, l2Node, int32(offsetIndex))
	if v.opts.log != nil {
		v.opts.log.Debugf("buckettree: find va=%d routed via L2 node=%d offset_index=%d entry_set=%d", va, l2Node, offsetIndex, entrySetIndex)
	}
	return int32(entrySetIndex), nil
}

// loadEntrySet reads the whole node_size slot for entrySetIndex from
// entry storage and verifies its header (spec.md §4.2 Step 2).
func (v *Visitor) loadEntrySet(ctx context.Context, entrySetIndex int32) error {
	g := v.tree.geometry
	if entrySetIndex < 0 || entrySetIndex >= g.entrySetCount {
		return fmt.Errorf("%w: entry set index %d out of [0, %d)", ErrOutOfRange, entrySetIndex, g.entrySetCount)
	}

	if err := readInto(ctx, v.tree.entryStorage, int64(entrySetIndex)*g.nodeSize, v.entrySet); err != nil {
		return err
	}
	h, err := DecodeNodeHeader(v.entrySet)
	if err != nil {
		return err
	}
	if err := h.verify(entrySetIndex, levelLeafSet, g.entriesPerNode); err != nil {
		return err
	}

	// The precise end of this set would be the next set's start, but
	// that isn't known without reading ahead; findEntryInSet only needs
	// start, and movement across the boundary re-reads the next set's
	// own header anyway. end is always the tree's end for simplicity.
	v.entrySetInfo = entrySetHeader{index: h.Index, count: h.Count, start: h.Offset, end: v.tree.GetEnd()}
	return nil
}

// findEntryInSet binary searches the loaded entry set's entries by
// leading virtual address for the predecessor of va (spec.md §4.2 Step
// 3, §4.2 "Binary search tie-break").
func (v *Visitor) findEntryInSet(va int64) error {
	count := int(v.entrySetInfo.count)
	if count == 0 {
		return fmt.Errorf("%w: entry set %d has no entries", ErrOutOfRange, v.entrySetInfo.index)
	}

	// sort.Search finds the first index for which the predicate holds;
	// we want the last index whose VA is <= va, i.e. one less than the
	// first index whose VA is > va.
	i := sort.Search(count, func(i int) bool {
		return v.entryVAAt(int32(i)) > va
	})
	if i == 0 {
		return fmt.Errorf("%w: va=%d precedes first entry of set %d", ErrOutOfRange, va, v.entrySetInfo.index)
	}
	idx := int32(i - 1)

	if v.entryVAAt(idx) < v.entrySetInfo.start {
		return fmt.Errorf("%w: entry %d address precedes entry set start", ErrOutOfRange, idx)
	}

	upper := v.entrySetInfo.end
	if int(idx)+1 < count {
		upper = v.entryVAAt(idx + 1)
	}
	if va >= upper {
		return fmt.Errorf("%w: va=%d does not precede upper bound %d of entry %d in set %d", ErrOutOfRange, va, upper, idx, v.entrySetInfo.index)
	}

	v.entryIndex = idx
	return nil
}

// MoveNext advances to the next entry in virtual-address order. If the
// current entry set is exhausted, it loads the next one, at the cost of
// one entry-storage read (spec.md §4.2 "move_next").
func (v *Visitor) MoveNext(ctx context.Context) error {
	if !v.IsValid() {
		panic(fmt.Errorf("%w: MoveNext called on invalid Visitor", ErrPreconditionViolation))
	}
	if !v.CanMoveNext() {
		return fmt.Errorf("%w: no next entry", ErrInvalidOffset)
	}

	if v.entryIndex+1 < v.entrySetInfo.count {
		v.entryIndex++
		return nil
	}

	if err := v.loadEntrySet(ctx, v.entrySetInfo.index+1); err != nil {
		return err
	}
	v.entryIndex = 0
	return nil
}

// MovePrevious is the symmetric counterpart of MoveNext: when crossing a
// set boundary backwards, it positions at the preceding set's last
// entry.
func (v *Visitor) MovePrevious(ctx context.Context) error {
	if !v.IsValid() {
		panic(fmt.Errorf("%w: MovePrevious called on invalid Visitor", ErrPreconditionViolation))
	}
	if !v.CanMovePrevious() {
		return fmt.Errorf("%w: no previous entry", ErrInvalidOffset)
	}

	if v.entryIndex > 0 {
		v.entryIndex--
		return nil
	}

	if err := v.loadEntrySet(ctx, v.entrySetInfo.index-1); err != nil {
		return err
	}
	v.entryIndex = v.entrySetInfo.count - 1
	return nil
}

// lowerBoundOffsets binary searches count 64-bit little-endian offsets
// in buf for the largest one <= va, returning its index. It fails with
// ErrOutOfRange if va is smaller than the first offset.
func lowerBoundOffsets(buf []byte, count int, va int64) (int, error) {
	idx, ok := tryLowerBoundOffsets(buf, count, va)
	if !ok {
		return 0, fmt.Errorf("%w: va=%d precedes first of %d offsets", ErrOutOfRange, va, count)
	}
	return idx, nil
}

// tryLowerBoundOffsets is lowerBoundOffsets without failing when va
// precedes the first offset; ok is false in that case (or when count is
// not positive). lowerBoundOffsets turns ok == false into ErrOutOfRange.
func tryLowerBoundOffsets(buf []byte, count int, va int64) (idx int, ok bool) {
	if count <= 0 {
		return 0, false
	}
	offsetAt := func(i int) int64 {
		var u uint64
		for shift := 0; shift < 8; shift++ {
			u |= uint64(buf[i*8+shift]) << (8 * shift)
		}
		return int64(u)
	}

	i := sort.Search(count, func(i int) bool {
		return offsetAt(i) > va
	})
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

package buckettree

// ContinuousReadingInfo is the result of a look-ahead scan over the
// current entry and its immediate successors, used to decide whether a
// single bulk physical read can satisfy a requested virtual range
// (spec.md §4.3).
type ContinuousReadingInfo struct {
	readSize  int64
	skipCount int32
	done      bool
}

// CanDo reports whether a bulk read is possible at all.
func (c *ContinuousReadingInfo) CanDo() bool { return c.readSize > 0 }

// ReadSize is the number of bytes covered by the contiguous physical
// run; 0 means "do the default per-entry read".
func (c *ContinuousReadingInfo) ReadSize() int64 { return c.readSize }

// SkipCount is the number of follow-on entries absorbed by the bulk
// read. The caller decrements it on each entry it skips and only
// re-scans once it reaches 0.
func (c *ContinuousReadingInfo) SkipCount() int32 { return c.skipCount }

// IsDone reports whether the scan absorbed the entire requested size,
// meaning no further scan is needed until the caller moves outside this
// run.
func (c *ContinuousReadingInfo) IsDone() bool { return c.done }

// CheckNeedScan predecrements SkipCount and reports whether the caller
// must scan again before consuming the next entry.
func (c *ContinuousReadingInfo) CheckNeedScan() bool {
	c.skipCount--
	return c.skipCount <= 0
}

// Reset clears the info back to its zero value, ready for another scan.
func (c *ContinuousReadingInfo) Reset() {
	c.readSize = 0
	c.skipCount = 0
	c.done = false
}

// ScanContinuousReading examines the Visitor's current entry and the
// entries following it within the current entry set to determine the
// longest run that a single contiguous physical read can satisfy for
// the virtual range [offset, offset+size). It never performs I/O and
// never advances the Visitor (spec.md §4.3).
//
// E must decode from the Visitor's raw fixed-size entry records via
// decode, and satisfy ContinuousEntry so the scan can read its physical
// offset and continuous-variant flag.
func ScanContinuousReading[E ContinuousEntry](v *Visitor, decode EntryDecoder[E], offset int64, size int64) (ContinuousReadingInfo, error) {
	var info ContinuousReadingInfo
	if !v.IsValid() {
		return info, ErrPreconditionViolation
	}
	if size <= 0 {
		return info, nil
	}

	e0 := decode(v.Entry())
	physicalStart := e0.PhysicalOffset() + (offset - e0.VirtualAddress())

	remaining := size
	consumed := int64(0)
	skip := int32(0)

	i := v.entryIndex
	count := v.entrySetInfo.count

	for i < count {
		e := decode(v.entrySetEntryAt(i))

		var span int64
		if i == v.entryIndex {
			// e0 itself: the covered span starts at offset, not at
			// e0's own virtual address, since offset may fall partway
			// into e0's region.
			span = v.spanOf(i) - (offset - e0.VirtualAddress())
		} else {
			if !e.IsContinuous() {
				break
			}
			if e.PhysicalOffset() != physicalStart+consumed {
				break
			}
			span = v.spanOf(i)
		}

		if span > remaining {
			span = remaining
		}
		consumed += span
		remaining -= span
		if i != v.entryIndex {
			skip++
		}
		if remaining <= 0 {
			break
		}
		i++
	}

	if consumed <= 0 {
		return info, nil
	}

	info.readSize = consumed
	info.skipCount = skip
	info.done = remaining <= 0
	return info, nil
}

// spanOf returns the number of virtual-address bytes entry i in the
// current entry set covers, bounded by the next entry (or the tree's
// end, for the last entry in the set).
func (v *Visitor) spanOf(i int32) int64 {
	va := v.entryVAAt(i)
	if i+1 < v.entrySetInfo.count {
		return v.entryVAAt(i+1) - va
	}
	return v.tree.GetEnd() - va
}

// entrySetEntryAt returns the raw bytes of entry i within the currently
// loaded entry set (i may differ from v.entryIndex, unlike Entry()).
func (v *Visitor) entrySetEntryAt(i int32) []byte {
	start := NodeHeaderSize + int(i)*int(v.tree.geometry.entrySize)
	return v.entrySet[start : start+int(v.tree.geometry.entrySize)]
}


package buckettreetest

import "github.com/datatrails/go-buckettree"

// CorruptMagic overwrites the first 4 bytes of a Header-prefixed buffer
// so Header.Verify fails with ErrInvalidHeader. Tests use this to check
// that a tampered index is rejected rather than silently misread.
func CorruptMagic(buf []byte) {
	for i := 0; i < 4 && i < len(buf); i++ {
		buf[i] ^= 0xff
	}
}

// CorruptNodeHeaderIndex overwrites the Index field of the NodeHeader at
// the start of buf, which must be at least buckettree.NodeHeaderSize
// bytes, so NodeHeader.verify's index check fails.
func CorruptNodeHeaderIndex(buf []byte, badIndex int32) {
	h, err := buckettree.DecodeNodeHeader(buf)
	if err != nil {
		return
	}
	h.Index = badIndex
	h.Encode(buf[0:buckettree.NodeHeaderSize])
}

// CorruptNodeHeaderCount overwrites the Count field of the NodeHeader at
// the start of buf so verify's fan-out bound check fails.
func CorruptNodeHeaderCount(buf []byte, badCount int32) {
	h, err := buckettree.DecodeNodeHeader(buf)
	if err != nil {
		return
	}
	h.Count = badCount
	h.Encode(buf[0:buckettree.NodeHeaderSize])
}

// TruncateStorage returns a prefix of buf, for tests that check
// behavior when a storage backend reports (or actually has) fewer bytes
// than the geometry requires.
func TruncateStorage(buf []byte, n int) []byte {
	if n > len(buf) {
		n = len(buf)
	}
	return buf[:n]
}

package buckettree

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed on-disk size of Header, in bytes.
const HeaderSize = 16

// Magic is the four-byte value every valid Header must carry.
const Magic uint32 = 'B' | 'K'<<8 | 'T'<<16 | 'R'<<24

// Version is the only Header version this implementation understands.
const Version uint32 = 1

// Header is the fixed 16-byte descriptor at the start of the index.
// Layout (little-endian): magic(4) version(4) entry_count(4) reserved(4).
type Header struct {
	Magic      uint32
	Version    uint32
	EntryCount int32
	Reserved   uint32
}

// QueryHeaderStorageSize returns the on-disk size of Header. It exists
// (rather than just using HeaderSize) to mirror the query_* sizing
// functions callers use to provision storage before a tree is built.
func QueryHeaderStorageSize() int64 {
	return HeaderSize
}

// DecodeHeader parses a Header from its on-disk representation. buf must
// be at least HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header buffer too small (%d < %d)", ErrInvalidHeader, len(buf), HeaderSize)
	}
	return Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		EntryCount: int32(binary.LittleEndian.Uint32(buf[8:12])),
		Reserved:   binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// Encode writes the on-disk representation of h into buf, which must be
// at least HeaderSize bytes. The reserved field is written as-is; per
// the design notes a conservative reader never depends on it being zero.
func (h Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.EntryCount))
	binary.LittleEndian.PutUint32(buf[12:16], h.Reserved)
}

// Verify checks magic, version, and that EntryCount is non-negative. The
// reserved field is never checked, per the design's open question.
func (h Header) Verify() error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: magic %#x != %#x", ErrInvalidHeader, h.Magic, Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: version %d != %d", ErrInvalidHeader, h.Version, Version)
	}
	if h.EntryCount < 0 {
		return fmt.Errorf("%w: negative entry count %d", ErrInvalidHeader, h.EntryCount)
	}
	return nil
}

// FormatHeader builds a Header ready to Encode for the given entry count.
func FormatHeader(entryCount int32) Header {
	return Header{Magic: Magic, Version: Version, EntryCount: entryCount}
}

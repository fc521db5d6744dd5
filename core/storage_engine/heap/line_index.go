package heap

import (
	"encoding/binary"
	"fmt"
)

// --- Line Index ---

// LineIndexEntrySize is the encoded size of one LineIndexEntry in bytes.
const LineIndexEntrySize = 8

// LineIndexEntry is one slot descriptor: four big-endian uint16 fields
// locating a line inside the page and describing its pointer prefix. The
// fields are decoded eagerly; an entry is a small immutable value.
type LineIndexEntry struct {
	recordType  uint16
	offset      uint16
	length      uint16
	pointerSize uint16
}

// NewLineIndexEntry assembles an entry from its four fields.
func NewLineIndexEntry(recordType, offset, length, pointerSize uint16) LineIndexEntry {
	return LineIndexEntry{
		recordType:  recordType,
		offset:      offset,
		length:      length,
		pointerSize: pointerSize,
	}
}

// DecodeLineIndexEntry parses one 8-byte entry.
func DecodeLineIndexEntry(b []byte) (LineIndexEntry, error) {
	if len(b) != LineIndexEntrySize {
		return LineIndexEntry{}, fmt.Errorf("%w: line index entry must be %d bytes, got %d", ErrBadLength, LineIndexEntrySize, len(b))
	}
	return LineIndexEntry{
		recordType:  binary.BigEndian.Uint16(b[0:2]),
		offset:      binary.BigEndian.Uint16(b[2:4]),
		length:      binary.BigEndian.Uint16(b[4:6]),
		pointerSize: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// RecordType returns the type tag of the line's record.
func (e LineIndexEntry) RecordType() uint16 { return e.recordType }

// Offset returns the byte offset of the line body within the page.
func (e LineIndexEntry) Offset() uint16 { return e.offset }

// Length returns the total line body length, pointer prefix included.
func (e LineIndexEntry) Length() uint16 { return e.length }

// PointerSize returns the number of leading Pointers before the payload.
func (e LineIndexEntry) PointerSize() uint16 { return e.pointerSize }

// Encode returns the 8-byte big-endian encoding.
func (e LineIndexEntry) Encode() []byte {
	out := make([]byte, LineIndexEntrySize)
	binary.BigEndian.PutUint16(out[0:2], e.recordType)
	binary.BigEndian.PutUint16(out[2:4], e.offset)
	binary.BigEndian.PutUint16(out[4:6], e.length)
	binary.BigEndian.PutUint16(out[6:8], e.pointerSize)
	return out
}

// LineIndex is the ordered slot directory of a page. On disk the entries sit
// in a contiguous block just before the trailer, stored in reverse placement
// order: logical entry 0 is the 8-byte group nearest the trailer.
type LineIndex []LineIndexEntry

// ParseLineIndex splits an index region into entries, undoing the reverse
// placement order. The region length must be a multiple of the entry size;
// anything else means the page was sliced wrong or is corrupt
// (ErrMalformedIndex).
func ParseLineIndex(region []byte) (LineIndex, error) {
	if len(region)%LineIndexEntrySize != 0 {
		return nil, fmt.Errorf("%w: region of %d bytes", ErrMalformedIndex, len(region))
	}
	count := len(region) / LineIndexEntrySize
	idx := make(LineIndex, count)
	for i := 0; i < count; i++ {
		start := len(region) - (i+1)*LineIndexEntrySize
		entry, err := DecodeLineIndexEntry(region[start : start+LineIndexEntrySize])
		if err != nil {
			return nil, err
		}
		idx[i] = entry
	}
	return idx, nil
}

// Encode lays the index back out in reverse placement order, ready to sit
// immediately before a trailer.
func (idx LineIndex) Encode() []byte {
	out := make([]byte, len(idx)*LineIndexEntrySize)
	for i, entry := range idx {
		start := len(out) - (i+1)*LineIndexEntrySize
		copy(out[start:start+LineIndexEntrySize], entry.Encode())
	}
	return out
}

package heap

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// --- Records ---

// RecordTagSize is the size of the record type tag that prefixes every
// encoded record.
const RecordTagSize = 2

// Record is an encoded record: a 2-byte big-endian type tag followed by an
// opaque payload. It is a plain byte slice, so length, indexing, slicing and
// iteration work directly on the encoded bytes. Treat records as immutable;
// every operation that produces a Record allocates a fresh one.
type Record []byte

// NewRecord builds a record from a type tag and a payload copy.
func NewRecord(tag uint16, payload []byte) Record {
	r := make(Record, RecordTagSize+len(payload))
	binary.BigEndian.PutUint16(r, tag)
	copy(r[RecordTagSize:], payload)
	return r
}

// DecodeRecord copies an encoded record, rejecting inputs too short to carry
// a tag.
func DecodeRecord(b []byte) (Record, error) {
	if len(b) < RecordTagSize {
		return nil, fmt.Errorf("%w: record needs at least %d bytes for its tag, got %d", ErrBadLength, RecordTagSize, len(b))
	}
	r := make(Record, len(b))
	copy(r, b)
	return r, nil
}

// Tag returns the record's type tag. Records built through NewRecord,
// DecodeRecord or Line.Record always carry one; a hand-rolled slice shorter
// than RecordTagSize panics here.
func (r Record) Tag() uint16 {
	return binary.BigEndian.Uint16(r[:RecordTagSize])
}

// Payload returns the bytes after the tag as a view into the record.
func (r Record) Payload() []byte {
	return r[RecordTagSize:]
}

// Compare orders records lexicographically over their full encodings, tag
// bytes included, with memcmp-then-length semantics. The ordering is total:
// records of different types order primarily by tag.
func (r Record) Compare(o Record) int {
	return bytes.Compare(r, o)
}

// Equal reports exact byte equality of the encodings.
func (r Record) Equal(o Record) bool {
	return bytes.Equal(r, o)
}

// Concat splices the raw encodings of both records into a new Record. This is
// a byte-level primitive for assembling line bodies, not a semantic merge:
// the result embeds the second record's tag bytes inside its payload, and the
// caller is responsible for giving that shape an interpretation.
func (r Record) Concat(o Record) Record {
	out := make(Record, 0, len(r)+len(o))
	out = append(out, r...)
	out = append(out, o...)
	return out
}

// String renders the tag and payload length, keeping payload bytes out of
// logs.
func (r Record) String() string {
	if len(r) < RecordTagSize {
		return fmt.Sprintf("record(<%d raw bytes>)", len(r))
	}
	return fmt.Sprintf("record(tag=%d, %d payload bytes)", r.Tag(), len(r)-RecordTagSize)
}

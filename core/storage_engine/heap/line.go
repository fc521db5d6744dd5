package heap

import "fmt"

// Line is one stored cell of a page: an index entry paired with the body
// bytes it points at. The body is a view into the page buffer, laid out as
// entry.PointerSize() encoded Pointers followed by the record payload. The
// record's type tag lives in the entry, not in the body.
type Line struct {
	entry LineIndexEntry
	body  []byte
}

// NewLine pairs an index entry with its body and validates that the two
// agree. The body length must match the entry exactly (ErrBadLength) and
// must leave room for the declared pointer prefix (ErrTruncatedLine).
// Validating here keeps Pointers and Record infallible.
func NewLine(entry LineIndexEntry, body []byte) (Line, error) {
	if len(body) != int(entry.Length()) {
		return Line{}, fmt.Errorf("%w: line body is %d bytes, index entry declares %d", ErrBadLength, len(body), entry.Length())
	}
	if int(entry.Length()) < PointerSize*int(entry.PointerSize()) {
		return Line{}, fmt.Errorf("%w: %d bytes cannot hold %d pointers", ErrTruncatedLine, entry.Length(), entry.PointerSize())
	}
	return Line{entry: entry, body: body}, nil
}

// Entry returns the index entry describing this line.
func (l Line) Entry() LineIndexEntry { return l.entry }

// Bytes returns the line body view. Callers must not mutate it.
func (l Line) Bytes() []byte { return l.body }

// Pointers decodes the pointer prefix of the body.
func (l Line) Pointers() []Pointer {
	n := int(l.entry.PointerSize())
	ptrs := make([]Pointer, n)
	for i := 0; i < n; i++ {
		// NewLine already proved the prefix fits.
		p, _ := DecodePointer(l.body[i*PointerSize : (i+1)*PointerSize])
		ptrs[i] = p
	}
	return ptrs
}

// Record reassembles the stored record from the entry's type tag and the
// payload bytes behind the pointer prefix.
func (l Line) Record() Record {
	return NewRecord(l.entry.RecordType(), l.body[PointerSize*int(l.entry.PointerSize()):])
}

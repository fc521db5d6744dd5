package heap

import "fmt"

// PageBuilder assembles a page from scratch: lines are appended in slot
// order, then Build lays out header, bodies, reverse-order index and trailer
// in one pass. All capacity checks happen at append time, so a builder that
// accepted every line always emits a page Open will accept back.
//
// The builder decides layout only. Which records land on which page is the
// caller's policy.
type PageBuilder struct {
	pageNo      int
	writeSwitch uint16
	tags        []uint16
	prefixLens  []uint16
	bodies      [][]byte
	bodyBytes   int
}

// NewPageBuilder starts an empty page with the given page number.
func NewPageBuilder(pageNo int) (*PageBuilder, error) {
	if pageNo < 0 || pageNo > MaxPageNumber {
		return nil, fmt.Errorf("%w: page number %d", ErrPointerRange, pageNo)
	}
	return &PageBuilder{pageNo: pageNo}, nil
}

// Len returns the number of lines appended so far.
func (b *PageBuilder) Len() int { return len(b.bodies) }

// Available returns the free bytes the page would report if built now.
func (b *PageBuilder) Available() int {
	return PageSize - PageHeaderSize - PageTrailerSize - b.bodyBytes - LineIndexEntrySize*len(b.bodies)
}

// SetWriteSwitch sets the header's write switch verbatim. The codec never
// interprets it; writer coordination happens above this layer.
func (b *PageBuilder) SetWriteSwitch(v uint16) { b.writeSwitch = v }

// AppendLine adds one line: the pointer prefix followed by the record's
// payload, with the record's tag going to the index entry. It fails with
// ErrBadLength on a record too short to carry a tag, ErrTooManyLines past the
// per-page line limit, and ErrPageFull when body plus index entry no longer
// fit.
func (b *PageBuilder) AppendLine(pointers []Pointer, rec Record) error {
	if len(rec) < RecordTagSize {
		return fmt.Errorf("%w: record of %d bytes has no tag", ErrBadLength, len(rec))
	}
	if len(b.bodies) >= MaxLinesPerPage {
		return fmt.Errorf("%w: page already holds %d lines", ErrTooManyLines, MaxLinesPerPage)
	}
	bodyLen := PointerSize*len(pointers) + len(rec.Payload())
	if bodyLen+LineIndexEntrySize > b.Available() {
		return fmt.Errorf("%w: line needs %d body bytes plus an index entry, %d free", ErrPageFull, bodyLen, b.Available())
	}

	body := make([]byte, 0, bodyLen)
	for _, p := range pointers {
		body = append(body, p.Encode()...)
	}
	body = append(body, rec.Payload()...)

	b.tags = append(b.tags, rec.Tag())
	b.prefixLens = append(b.prefixLens, uint16(len(pointers)))
	b.bodies = append(b.bodies, body)
	b.bodyBytes += bodyLen
	return nil
}

// Build emits the page image. Bodies run forward from the header in slot
// order, the index block sits just before the trailer in reverse placement
// order, and the header records the recomputed available space and the
// first/last line pointers (the zero pointer on an empty page).
func (b *PageBuilder) Build() ([]byte, error) {
	buf := make([]byte, PageSize)

	index := make(LineIndex, len(b.bodies))
	off := PageHeaderSize
	for i, body := range b.bodies {
		copy(buf[off:], body)
		index[i] = NewLineIndexEntry(b.tags[i], uint16(off), uint16(len(body)), b.prefixLens[i])
		off += len(body)
	}

	encoded := index.Encode()
	copy(buf[PageSize-PageTrailerSize-len(encoded):PageSize-PageTrailerSize], encoded)

	var first, last Pointer
	if n := len(b.bodies); n > 0 {
		first = newPointer(uint32(b.pageNo), 0)
		last = newPointer(uint32(b.pageNo), uint8(n-1))
	}
	header := NewPageHeader(uint32(b.pageNo), first, last, uint16(b.Available()), b.writeSwitch)
	copy(buf[:PageHeaderSize], header.Encode())

	trailer := NewPageTrailer(uint8(len(b.bodies)), uint32(b.pageNo))
	copy(buf[PageSize-PageTrailerSize:], trailer.Encode())

	return buf, nil
}

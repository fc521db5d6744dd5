package heap

import (
	"encoding/binary"
	"fmt"
)

const (
	// PageSize is the fixed on-disk size of every page.
	PageSize = 4096

	// PageHeaderSize is the fixed prefix reserved for the header.
	PageHeaderSize = 24

	// PageTrailerSize is the fixed suffix reserved for the trailer.
	PageTrailerSize = 8

	// MaxLinesPerPage is the largest line count a trailer can record.
	MaxLinesPerPage = 255
)

// PageHeader is the 24-byte page prefix.
//
//	[0:4)   page number, big-endian
//	[4:8)   pointer to the first line in placement order
//	[8:12)  pointer to the last line in placement order
//	[12:14) available space, big-endian
//	[14:16) write switch, big-endian
//	[16:24) reserved
type PageHeader struct {
	pageNumber     uint32
	calcFirst      Pointer
	calcLast       Pointer
	availableSpace uint16
	writeSwitch    uint16
	reserved       [8]byte
}

// NewPageHeader builds a header value. Reserved bytes are zero.
func NewPageHeader(pageNumber uint32, calcFirst, calcLast Pointer, availableSpace, writeSwitch uint16) PageHeader {
	return PageHeader{
		pageNumber:     pageNumber,
		calcFirst:      calcFirst,
		calcLast:       calcLast,
		availableSpace: availableSpace,
		writeSwitch:    writeSwitch,
	}
}

// DecodePageHeader parses exactly PageHeaderSize bytes.
func DecodePageHeader(b []byte) (PageHeader, error) {
	if len(b) != PageHeaderSize {
		return PageHeader{}, fmt.Errorf("%w: page header must be %d bytes, got %d", ErrBadLength, PageHeaderSize, len(b))
	}
	first, err := DecodePointer(b[4:8])
	if err != nil {
		return PageHeader{}, err
	}
	last, err := DecodePointer(b[8:12])
	if err != nil {
		return PageHeader{}, err
	}
	h := PageHeader{
		pageNumber:     binary.BigEndian.Uint32(b[0:4]),
		calcFirst:      first,
		calcLast:       last,
		availableSpace: binary.BigEndian.Uint16(b[12:14]),
		writeSwitch:    binary.BigEndian.Uint16(b[14:16]),
	}
	copy(h.reserved[:], b[16:24])
	return h, nil
}

// PageNumber returns the page number stored in the header.
func (h PageHeader) PageNumber() uint32 { return h.pageNumber }

// CalcFirst returns the pointer to the first line in placement order.
func (h PageHeader) CalcFirst() Pointer { return h.calcFirst }

// CalcLast returns the pointer to the last line in placement order.
func (h PageHeader) CalcLast() Pointer { return h.calcLast }

// AvailableSpace returns the free byte count recorded at build time.
func (h PageHeader) AvailableSpace() uint16 { return h.availableSpace }

// WriteSwitch returns the write protection flag, 0 for writable.
func (h PageHeader) WriteSwitch() uint16 { return h.writeSwitch }

// Encode returns the 24-byte header image.
func (h PageHeader) Encode() []byte {
	out := make([]byte, PageHeaderSize)
	binary.BigEndian.PutUint32(out[0:4], h.pageNumber)
	copy(out[4:8], h.calcFirst.Encode())
	copy(out[8:12], h.calcLast.Encode())
	binary.BigEndian.PutUint16(out[12:14], h.availableSpace)
	binary.BigEndian.PutUint16(out[14:16], h.writeSwitch)
	copy(out[16:24], h.reserved[:])
	return out
}

// PageTrailer is the 8-byte page suffix.
//
//	[0:1)  line index count
//	[1:4)  reserved
//	[4:8)  page number, big-endian
//
// The duplicated page number is the torn-write tripwire: a page whose header
// and trailer disagree was never written whole.
type PageTrailer struct {
	lineIndexCount uint8
	reserved       [3]byte
	pageNumber     uint32
}

// NewPageTrailer builds a trailer value. Reserved bytes are zero.
func NewPageTrailer(lineIndexCount uint8, pageNumber uint32) PageTrailer {
	return PageTrailer{lineIndexCount: lineIndexCount, pageNumber: pageNumber}
}

// DecodePageTrailer parses exactly PageTrailerSize bytes.
func DecodePageTrailer(b []byte) (PageTrailer, error) {
	if len(b) != PageTrailerSize {
		return PageTrailer{}, fmt.Errorf("%w: page trailer must be %d bytes, got %d", ErrBadLength, PageTrailerSize, len(b))
	}
	t := PageTrailer{
		lineIndexCount: b[0],
		pageNumber:     binary.BigEndian.Uint32(b[4:8]),
	}
	copy(t.reserved[:], b[1:4])
	return t, nil
}

// LineIndexCount returns the number of line index entries on the page.
func (t PageTrailer) LineIndexCount() uint8 { return t.lineIndexCount }

// PageNumber returns the page number stored in the trailer.
func (t PageTrailer) PageNumber() uint32 { return t.pageNumber }

// Encode returns the 8-byte trailer image.
func (t PageTrailer) Encode() []byte {
	out := make([]byte, PageTrailerSize)
	out[0] = t.lineIndexCount
	copy(out[1:4], t.reserved[:])
	binary.BigEndian.PutUint32(out[4:8], t.pageNumber)
	return out
}

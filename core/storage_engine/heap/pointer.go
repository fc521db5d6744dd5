package heap

import "fmt"

// --- Pointers ---

const (
	// PointerSize is the encoded size of a Pointer in bytes.
	PointerSize = 4

	// MaxPageNumber is the largest page number a Pointer can address
	// (23 bits; the top bit of the first byte is reserved).
	MaxPageNumber = 1<<23 - 1

	// MaxLineNumber is the largest line number a Pointer can address (8 bits).
	MaxLineNumber = 255
)

// Pointer is a 32-bit (page, line) address: one reserved bit, a 23-bit page
// number and an 8-bit line number, big-endian. It is an immutable value type;
// == compares the encoded bytes.
type Pointer struct {
	raw [PointerSize]byte
}

// NewPointer builds a Pointer, rejecting out-of-range fields with
// ErrPointerRange.
func NewPointer(page, line int) (Pointer, error) {
	if page < 0 || page > MaxPageNumber {
		return Pointer{}, fmt.Errorf("%w: page number %d not in [0, %d]", ErrPointerRange, page, MaxPageNumber)
	}
	if line < 0 || line > MaxLineNumber {
		return Pointer{}, fmt.Errorf("%w: line number %d not in [0, %d]", ErrPointerRange, line, MaxLineNumber)
	}
	return newPointer(uint32(page), uint8(line)), nil
}

// newPointer skips range validation; callers must pass in-range fields.
func newPointer(page uint32, line uint8) Pointer {
	var p Pointer
	p.raw[0] = byte(page >> 16)
	p.raw[1] = byte(page >> 8)
	p.raw[2] = byte(page)
	p.raw[3] = line
	return p
}

// DecodePointer parses a 4-byte encoding. Only the length is validated; the
// bytes are carried as-is, reserved bit included.
func DecodePointer(b []byte) (Pointer, error) {
	if len(b) != PointerSize {
		return Pointer{}, fmt.Errorf("%w: pointer must be %d bytes, got %d", ErrBadLength, PointerSize, len(b))
	}
	var p Pointer
	copy(p.raw[:], b)
	return p, nil
}

// Page returns the page number.
func (p Pointer) Page() int {
	return int(p.raw[0])<<16 | int(p.raw[1])<<8 | int(p.raw[2])
}

// Line returns the line number.
func (p Pointer) Line() int {
	return int(p.raw[3])
}

// Encode returns the 4-byte big-endian encoding in a fresh slice.
func (p Pointer) Encode() []byte {
	out := make([]byte, PointerSize)
	copy(out, p.raw[:])
	return out
}

// String renders the display form "page:line".
func (p Pointer) String() string {
	return fmt.Sprintf("%d:%d", p.Page(), p.Line())
}

// GoString renders the debug form "pointer(page, line)" used by %#v.
func (p Pointer) GoString() string {
	return fmt.Sprintf("pointer(%d, %d)", p.Page(), p.Line())
}

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLineIndexEntry_EncodeRoundTrip pins the four big-endian uint16 fields
// to their byte positions.
func TestLineIndexEntry_EncodeRoundTrip(t *testing.T) {
	e := NewLineIndexEntry(3, 24, 300, 1)

	enc := e.Encode()
	require.Equal(t, []byte{0x00, 0x03, 0x00, 0x18, 0x01, 0x2C, 0x00, 0x01}, enc)

	back, err := DecodeLineIndexEntry(enc)
	require.NoError(t, err)
	require.Equal(t, uint16(3), back.RecordType())
	require.Equal(t, uint16(24), back.Offset())
	require.Equal(t, uint16(300), back.Length())
	require.Equal(t, uint16(1), back.PointerSize())
	require.Equal(t, e, back)
}

// TestLineIndexEntry_DecodeLength rejects every length except eight bytes.
func TestLineIndexEntry_DecodeLength(t *testing.T) {
	for _, n := range []int{0, 4, 7, 9, 16} {
		_, err := DecodeLineIndexEntry(make([]byte, n))
		require.ErrorIs(t, err, ErrBadLength, "length %d must be rejected", n)
	}
}

// TestLineIndex_ReverseOrder verifies the placement convention: logical entry
// 0 is the group nearest the trailer, so it encodes into the LAST eight bytes
// of the region and parses back out first.
func TestLineIndex_ReverseOrder(t *testing.T) {
	e0 := NewLineIndexEntry(10, 24, 5, 0)
	e1 := NewLineIndexEntry(11, 29, 9, 1)
	e2 := NewLineIndexEntry(12, 38, 2, 0)
	idx := LineIndex{e0, e1, e2}

	region := idx.Encode()
	require.Len(t, region, 3*LineIndexEntrySize)
	require.Equal(t, e0.Encode(), region[16:24], "entry 0 sits nearest the trailer")
	require.Equal(t, e1.Encode(), region[8:16])
	require.Equal(t, e2.Encode(), region[0:8])

	back, err := ParseLineIndex(region)
	require.NoError(t, err)
	require.Equal(t, idx, back)
}

// TestLineIndex_ParseEmpty accepts a zero-length region as an empty index.
func TestLineIndex_ParseEmpty(t *testing.T) {
	idx, err := ParseLineIndex(nil)
	require.NoError(t, err)
	require.Empty(t, idx)
}

// TestLineIndex_ParseMalformed rejects regions that do not divide into whole
// entries.
func TestLineIndex_ParseMalformed(t *testing.T) {
	for _, n := range []int{1, 7, 9, 15, 31} {
		_, err := ParseLineIndex(make([]byte, n))
		require.ErrorIs(t, err, ErrMalformedIndex, "region of %d bytes must be rejected", n)
	}
}

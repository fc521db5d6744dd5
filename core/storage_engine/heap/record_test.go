package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecord_NewAndAccessors verifies the tag/payload split of the encoding.
func TestRecord_NewAndAccessors(t *testing.T) {
	r := NewRecord(513, []byte("hello"))

	require.Equal(t, uint16(513), r.Tag())
	require.Equal(t, []byte("hello"), r.Payload())
	require.Len(t, r, RecordTagSize+5)
	require.Equal(t, []byte{0x02, 0x01}, []byte(r[:RecordTagSize]), "tag is big-endian")
}

// TestRecord_NewCopiesPayload verifies the record owns its bytes.
func TestRecord_NewCopiesPayload(t *testing.T) {
	payload := []byte("abc")
	r := NewRecord(1, payload)

	payload[0] = 'z'
	require.Equal(t, []byte("abc"), r.Payload())
}

// TestRecord_Decode covers the minimum-length contract.
func TestRecord_Decode(t *testing.T) {
	_, err := DecodeRecord(nil)
	require.ErrorIs(t, err, ErrBadLength)
	_, err = DecodeRecord([]byte{0x01})
	require.ErrorIs(t, err, ErrBadLength)

	r, err := DecodeRecord([]byte{0x00, 0x2A})
	require.NoError(t, err)
	require.Equal(t, uint16(42), r.Tag())
	require.Empty(t, r.Payload(), "a bare tag is a valid record with an empty payload")

	src := []byte{0x00, 0x01, 0xAA, 0xBB}
	r, err = DecodeRecord(src)
	require.NoError(t, err)
	src[2] = 0x00
	require.Equal(t, []byte{0xAA, 0xBB}, r.Payload(), "decode must copy the input")
}

// TestRecord_Ordering checks the total order over full encodings: the tag
// bytes come first, so records of different types never interleave.
func TestRecord_Ordering(t *testing.T) {
	tests := []struct {
		name string
		a, b Record
		want int
	}{
		{"equal", NewRecord(1, []byte("x")), NewRecord(1, []byte("x")), 0},
		{"payload order", NewRecord(1, []byte("abc")), NewRecord(1, []byte("abd")), -1},
		{"prefix is smaller", NewRecord(1, []byte("ab")), NewRecord(1, []byte("abc")), -1},
		{"tag dominates payload", NewRecord(1, []byte("zzz")), NewRecord(2, nil), -1},
		{"reverse", NewRecord(3, nil), NewRecord(2, []byte("zzz")), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Compare(tc.b))
			assert.Equal(t, -tc.want, tc.b.Compare(tc.a))
			assert.Equal(t, tc.want == 0, tc.a.Equal(tc.b))
		})
	}
}

// TestRecord_Concat verifies the splice semantics: lengths add, bytes
// concatenate verbatim, and the operation is associative.
func TestRecord_Concat(t *testing.T) {
	a := NewRecord(1, []byte("aa"))
	b := NewRecord(2, []byte("b"))
	c := NewRecord(3, nil)

	ab := a.Concat(b)
	require.Len(t, ab, len(a)+len(b))
	require.Equal(t, uint16(1), ab.Tag(), "the splice keeps the first record's tag")
	require.Equal(t, []byte{0x00, 0x01, 'a', 'a', 0x00, 0x02, 'b'}, []byte(ab))

	require.True(t, ab.Concat(c).Equal(a.Concat(b.Concat(c))))

	// The result is fresh storage on both sides.
	ab[0] = 0xFF
	require.Equal(t, uint16(1), a.Tag())
}

// TestRecord_String keeps payload bytes out of the rendering.
func TestRecord_String(t *testing.T) {
	assert.Equal(t, "record(tag=7, 3 payload bytes)", NewRecord(7, []byte("abc")).String())
	assert.Equal(t, "record(<1 raw bytes>)", Record{0x01}.String())
}

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// mustPointer builds a Pointer or stops the test.
func mustPointer(t *testing.T, page, line int) Pointer {
	t.Helper()
	p, err := NewPointer(page, line)
	require.NoError(t, err)
	return p
}

// TestLine_PointersAndRecord parses a body with a two-pointer prefix and
// checks that the record is reassembled from the entry's tag plus the payload
// behind the prefix.
func TestLine_PointersAndRecord(t *testing.T) {
	p1 := mustPointer(t, 1812, 3)
	p2 := mustPointer(t, 2023, 6)
	payload := []byte("payload")

	body := append(append(p1.Encode(), p2.Encode()...), payload...)
	entry := NewLineIndexEntry(9, 24, uint16(len(body)), 2)

	line, err := NewLine(entry, body)
	require.NoError(t, err)

	require.Equal(t, []Pointer{p1, p2}, line.Pointers())
	require.Equal(t, NewRecord(9, payload), line.Record())
	require.Equal(t, entry, line.Entry())
	require.Equal(t, body, line.Bytes())
}

// TestLine_NoPrefix covers the common case of a line without pointers: the
// whole body is payload.
func TestLine_NoPrefix(t *testing.T) {
	body := []byte("just payload")
	entry := NewLineIndexEntry(1, 24, uint16(len(body)), 0)

	line, err := NewLine(entry, body)
	require.NoError(t, err)
	require.Empty(t, line.Pointers())
	require.Equal(t, NewRecord(1, body), line.Record())
}

// TestLine_EmptyBody accepts a zero-length line: no prefix, empty payload.
func TestLine_EmptyBody(t *testing.T) {
	line, err := NewLine(NewLineIndexEntry(4, 24, 0, 0), nil)
	require.NoError(t, err)
	require.Equal(t, NewRecord(4, nil), line.Record())
}

// TestLine_LengthMismatch rejects a body that disagrees with its entry.
func TestLine_LengthMismatch(t *testing.T) {
	entry := NewLineIndexEntry(1, 24, 10, 0)
	_, err := NewLine(entry, make([]byte, 9))
	require.ErrorIs(t, err, ErrBadLength)
	_, err = NewLine(entry, make([]byte, 11))
	require.ErrorIs(t, err, ErrBadLength)
}

// TestLine_TruncatedPrefix rejects an entry whose declared pointer prefix
// does not fit in the body.
func TestLine_TruncatedPrefix(t *testing.T) {
	// 7 bytes cannot hold two 4-byte pointers.
	entry := NewLineIndexEntry(1, 24, 7, 2)
	_, err := NewLine(entry, make([]byte, 7))
	require.ErrorIs(t, err, ErrTruncatedLine)

	// Exactly two pointers and nothing else is fine.
	entry = NewLineIndexEntry(1, 24, 8, 2)
	line, err := NewLine(entry, make([]byte, 8))
	require.NoError(t, err)
	require.Len(t, line.Pointers(), 2)
	require.Empty(t, line.Record().Payload())
}

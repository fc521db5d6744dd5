package hexdump

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDump_FullRow pins the exact row format: offset, split hex groups,
// ASCII gutter.
func TestDump_FullRow(t *testing.T) {
	buf := []byte("0123456789abcdef")
	want := "00000000  30 31 32 33 34 35 36 37  38 39 61 62 63 64 65 66  |0123456789abcdef|\n"
	require.Equal(t, want, Dump(buf, 0))
}

// TestDump_BaseOffset labels rows with the caller's offset, the point of
// this package.
func TestDump_BaseOffset(t *testing.T) {
	out := Dump(make([]byte, 32), 4064)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "00000fe0  "), "first row starts at 4064")
	require.True(t, strings.HasPrefix(lines[1], "00000ff0  "), "second row starts at 4080")
}

// TestDump_PartialRow pads the hex columns so the gutter still lines up.
func TestDump_PartialRow(t *testing.T) {
	out := Dump([]byte{0x54, 0x41, 0x54, 0x4D}, 0)
	// 12 columns of padding plus the half-row gap and the gutter separator.
	want := "00000000  54 41 54 4d" + strings.Repeat(" ", 39) + "|TATM|\n"
	require.Equal(t, want, out)
}

// TestDump_NonPrintable replaces control bytes with dots in the gutter.
func TestDump_NonPrintable(t *testing.T) {
	out := Dump([]byte{0x00, 0x1F, 0x20, 0x7E, 0x7F, 0xFF}, 0)
	require.Contains(t, out, "|.. ~..|")
}

// TestDump_Empty renders nothing for an empty region.
func TestDump_Empty(t *testing.T) {
	require.Equal(t, "", Dump(nil, 0))
}

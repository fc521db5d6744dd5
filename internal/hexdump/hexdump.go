// Package hexdump renders byte regions for the inspector. Unlike
// encoding/hex.Dump, rows are labeled with a caller-chosen base offset, so a
// slice of a page prints with its real in-page offsets.
package hexdump

import (
	"fmt"
	"strings"
)

const bytesPerRow = 16

// Dump formats buf as rows of 16 bytes: offset, hex groups, then a printable
// ASCII gutter. Offsets count from base.
func Dump(buf []byte, base int) string {
	var sb strings.Builder
	for start := 0; start < len(buf); start += bytesPerRow {
		end := start + bytesPerRow
		if end > len(buf) {
			end = len(buf)
		}
		row := buf[start:end]

		fmt.Fprintf(&sb, "%08x  ", base+start)
		for i := 0; i < bytesPerRow; i++ {
			if i == bytesPerRow/2 {
				sb.WriteByte(' ')
			}
			if i < len(row) {
				fmt.Fprintf(&sb, "%02x ", row[i])
			} else {
				sb.WriteString("   ")
			}
		}

		sb.WriteString(" |")
		for _, b := range row {
			if b >= 0x20 && b < 0x7f {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}

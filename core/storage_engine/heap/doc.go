// Package heap implements the slotted-page format that every higher layer of
// tatami stores its data in: a fixed 4096-byte page packing variable-length
// records, addressed by compact 32-bit (page, line) pointers.
//
// Page layout:
//
//	┌──────────────────────────────────────────────────────────┐
//	│ PageHeader (24 B)                                        │
//	├──────────────────────────────────────────────────────────┤
//	│ line bodies (grow forward from offset 24)                │
//	│   [line 0][line 1]...                                    │
//	├──────────────────────────────────────────────────────────┤
//	│ free space                                               │
//	├──────────────────────────────────────────────────────────┤
//	│ LineIndex (8 B per entry, reverse placement order,       │
//	│ entry 0 stored nearest the trailer)                      │
//	├──────────────────────────────────────────────────────────┤
//	│ PageTrailer (8 B)                                        │
//	└──────────────────────────────────────────────────────────┘
//
// Each line body is a prefix of 4-byte Pointers followed by a record payload;
// the record's 2-byte type tag lives in the line's index entry, not in the
// body. All multi-byte fields are big-endian.
//
// The package is a pure codec: it performs no I/O, takes no locks, and never
// decides where a record should be placed. Open parses a buffer into
// zero-copy views that stay valid exactly as long as the caller (normally the
// buffer pool) keeps the buffer stable. Mutation goes the other way: edit the
// logical record sequence, then Rebuild into a fresh buffer that is published
// as a whole. Buffers are never edited in place.
package heap

package heap

import "fmt"

// Page is a parsed view over one PageSize buffer. Opening a page decodes the
// header, trailer and line index eagerly and validates every slot; line
// bodies stay zero-copy views into the buffer, so the buffer must outlive the
// Page and stay stable (pinned in a frame) while the Page is in use.
//
// Set and Remove edit only the in-memory logical record sequence. The buffer
// is never touched: Header, Trailer, Index and Line keep reporting what was
// parsed, while Len, Record, Records and Contains reflect pending edits.
// Rebuild packs the edited sequence into a fresh buffer for publication.
type Page struct {
	buf      []byte
	header   PageHeader
	trailer  PageTrailer
	index    LineIndex
	lines    []Line
	records  []Record
	prefixes [][]Pointer
	modified bool
}

// Open parses a page buffer.
//
// It fails with ErrBadLength on a wrong-sized buffer, ErrPageIntegrity when
// header and trailer disagree on the page number, ErrMalformedIndex or
// ErrOutOfBounds on a corrupt line index, and ErrTruncatedLine when a line
// cannot hold its declared pointer prefix.
func Open(buf []byte) (*Page, error) {
	// 1. The codec only ever deals in whole pages.
	if len(buf) != PageSize {
		return nil, fmt.Errorf("%w: page buffer must be %d bytes, got %d", ErrBadLength, PageSize, len(buf))
	}

	// 2. Fixed regions first.
	header, err := DecodePageHeader(buf[:PageHeaderSize])
	if err != nil {
		return nil, err
	}
	trailer, err := DecodePageTrailer(buf[PageSize-PageTrailerSize:])
	if err != nil {
		return nil, err
	}

	// 3. The duplicated page number is the torn-write check.
	if header.PageNumber() != trailer.PageNumber() {
		return nil, fmt.Errorf("%w: header says %d, trailer says %d", ErrPageIntegrity, header.PageNumber(), trailer.PageNumber())
	}

	// 4. The trailer count, not slice arithmetic, decides the index region.
	count := int(trailer.LineIndexCount())
	bodyEnd := PageSize - LineIndexEntrySize*(count+1)
	index, err := ParseLineIndex(buf[bodyEnd : PageSize-PageTrailerSize])
	if err != nil {
		return nil, err
	}

	// 5. Every slot must land inside the body region before it is touched.
	lines := make([]Line, count)
	records := make([]Record, count)
	prefixes := make([][]Pointer, count)
	for i, entry := range index {
		off := int(entry.Offset())
		end := off + int(entry.Length())
		if off < PageHeaderSize || end > bodyEnd {
			return nil, fmt.Errorf("%w: slot %d spans [%d:%d), body region is [%d:%d)", ErrOutOfBounds, i, off, end, PageHeaderSize, bodyEnd)
		}
		line, err := NewLine(entry, buf[off:end])
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		lines[i] = line
		records[i] = line.Record()
		prefixes[i] = line.Pointers()
	}

	return &Page{
		buf:      buf,
		header:   header,
		trailer:  trailer,
		index:    index,
		lines:    lines,
		records:  records,
		prefixes: prefixes,
	}, nil
}

// PageNumber returns the page number shared by header and trailer.
func (p *Page) PageNumber() int { return int(p.header.PageNumber()) }

// Header returns the parsed header.
func (p *Page) Header() PageHeader { return p.header }

// Trailer returns the parsed trailer.
func (p *Page) Trailer() PageTrailer { return p.trailer }

// Index returns the parsed line index. It reflects the buffer, not pending
// Set/Remove edits.
func (p *Page) Index() LineIndex { return p.index }

// Len returns the current number of records, pending edits included.
func (p *Page) Len() int { return len(p.records) }

// Line returns the parsed line at slot i. Like Index it reflects the buffer,
// not pending edits.
func (p *Page) Line(i int) (Line, error) {
	if i < 0 || i >= len(p.lines) {
		return Line{}, fmt.Errorf("%w: line %d of %d", ErrSlotOutOfRange, i, len(p.lines))
	}
	return p.lines[i], nil
}

// Record returns the record at slot i.
func (p *Page) Record(i int) (Record, error) {
	if i < 0 || i >= len(p.records) {
		return nil, fmt.Errorf("%w: record %d of %d", ErrSlotOutOfRange, i, len(p.records))
	}
	return p.records[i], nil
}

// Records returns the current record sequence in slot order. The slice is
// fresh; the records themselves are shared.
func (p *Page) Records() []Record {
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// Pointers returns the pointer prefix of slot i.
func (p *Page) Pointers(i int) ([]Pointer, error) {
	if i < 0 || i >= len(p.prefixes) {
		return nil, fmt.Errorf("%w: slot %d of %d", ErrSlotOutOfRange, i, len(p.prefixes))
	}
	return p.prefixes[i], nil
}

// Contains reports whether any current record equals r.
func (p *Page) Contains(r Record) bool {
	for _, rec := range p.records {
		if rec.Equal(r) {
			return true
		}
	}
	return false
}

// Set replaces the record at slot i, keeping the slot's pointer prefix. The
// change is logical only; call Rebuild to produce the new page image.
func (p *Page) Set(i int, r Record) error {
	if i < 0 || i >= len(p.records) {
		return fmt.Errorf("%w: set at %d of %d", ErrSlotOutOfRange, i, len(p.records))
	}
	p.records[i] = r
	p.modified = true
	return nil
}

// Remove deletes slot i; later slots shift down one position. The change is
// logical only; call Rebuild to produce the new page image.
func (p *Page) Remove(i int) error {
	if i < 0 || i >= len(p.records) {
		return fmt.Errorf("%w: remove at %d of %d", ErrSlotOutOfRange, i, len(p.records))
	}
	p.records = append(p.records[:i], p.records[i+1:]...)
	p.prefixes = append(p.prefixes[:i], p.prefixes[i+1:]...)
	p.modified = true
	return nil
}

// Modified reports whether Set or Remove has been called since Open.
func (p *Page) Modified() bool { return p.modified }

// Rebuild packs the current logical lines into a fresh page buffer with all
// derived fields recomputed: offsets, reverse-order index, available space,
// first/last pointers and the trailer count. The original buffer is left
// untouched; callers publish the result and re-Open it.
func (p *Page) Rebuild() ([]byte, error) {
	b, err := NewPageBuilder(p.PageNumber())
	if err != nil {
		return nil, err
	}
	b.SetWriteSwitch(p.header.WriteSwitch())
	for i := range p.records {
		if err := b.AppendLine(p.prefixes[i], p.records[i]); err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
	}
	return b.Build()
}

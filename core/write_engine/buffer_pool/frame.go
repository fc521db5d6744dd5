// Package buffer_pool keeps page images in memory behind an LRU pool. A
// pinned frame's buffer is stable, which is the lifetime guarantee the heap
// codec's zero-copy views rely on: hold the pin for as long as the parsed
// page is in use.
package buffer_pool

import (
	"container/list"
	"sync"

	"github.com/tatami-db/tatami/core/storage_engine/heap"
)

// InvalidPageNo marks a frame that holds no page. Page 0 is the heap file's
// header block, never a data page, so zero is free to mean invalid.
const InvalidPageNo uint32 = 0

// Frame is one in-memory page slot.
type Frame struct {
	pageNo   uint32
	data     []byte
	pinCount uint32
	isDirty  bool

	// lruElement points at this frame's entry in the pool's LRU list.
	lruElement *list.Element

	// latch protects the frame's contents. The pool's own mutex only covers
	// pool bookkeeping; readers and writers of page bytes go through here.
	latch sync.RWMutex
}

// NewFrame allocates an empty frame with a page-sized buffer.
func NewFrame() *Frame {
	return &Frame{
		pageNo: InvalidPageNo,
		data:   make([]byte, heap.PageSize),
	}
}

// Reset clears the frame for reuse. The buffer is zeroed so no previous
// page's bytes leak into the next occupant.
func (f *Frame) Reset() {
	f.pageNo = InvalidPageNo
	f.pinCount = 0
	f.isDirty = false
	f.lruElement = nil
	for i := range f.data {
		f.data[i] = 0
	}
}

func (f *Frame) PageNo() uint32                { return f.pageNo }
func (f *Frame) SetPageNo(pageNo uint32)       { f.pageNo = pageNo }
func (f *Frame) Data() []byte                  { return f.data }
func (f *Frame) SetData(buf []byte)            { copy(f.data, buf) }
func (f *Frame) PinCount() uint32              { return f.pinCount }
func (f *Frame) SetPinCount(n uint32)          { f.pinCount = n }
func (f *Frame) Pin()                          { f.pinCount++ }
func (f *Frame) IsDirty() bool                 { return f.isDirty }
func (f *Frame) SetDirty(dirty bool)           { f.isDirty = dirty }
func (f *Frame) LruElement() *list.Element     { return f.lruElement }
func (f *Frame) SetLruElement(e *list.Element) { f.lruElement = e }

// Unpin decrements the pin count, stopping at zero.
func (f *Frame) Unpin() {
	if f.pinCount > 0 {
		f.pinCount--
	}
}

// RLock acquires a shared latch on the frame's contents.
func (f *Frame) RLock() { f.latch.RLock() }

// RUnlock releases a shared latch.
func (f *Frame) RUnlock() { f.latch.RUnlock() }

// Lock acquires an exclusive latch on the frame's contents.
func (f *Frame) Lock() { f.latch.Lock() }

// Unlock releases an exclusive latch.
func (f *Frame) Unlock() { f.latch.Unlock() }

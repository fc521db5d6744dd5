package buffer_pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tatami-db/tatami/core/storage_engine/heap"
	"github.com/tatami-db/tatami/core/storage_engine/heap_file"
	"go.uber.org/zap"
)

var (
	ErrPoolFull     = errors.New("buffer pool is full and every frame is pinned")
	ErrPageNotFound = errors.New("page not resident in the buffer pool")
)

// BufferPool caches page images in a fixed set of frames with LRU eviction.
// Frames are handed out pinned; callers unpin when done and say whether they
// dirtied the page. Dirty pages are written back on eviction, flush, or
// close.
type BufferPool struct {
	diskManager *heap_file.DiskManager
	logger      *zap.Logger
	metrics     *Metrics
	poolSize    int
	frames      []*Frame
	pageTable   map[uint32]int // page number to frame index
	lruList     *list.List     // frame indices, most recent at the front
	mu          sync.Mutex
}

// NewBufferPool creates a pool of poolSize frames over the disk manager.
// metrics may be nil to disable instrumentation.
func NewBufferPool(poolSize int, dm *heap_file.DiskManager, logger *zap.Logger, metrics *Metrics) *BufferPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dm == nil {
		logger.Fatal("NewBufferPool: disk manager cannot be nil")
	}
	bp := &BufferPool{
		diskManager: dm,
		logger:      logger,
		metrics:     metrics,
		poolSize:    poolSize,
		frames:      make([]*Frame, poolSize),
		pageTable:   make(map[uint32]int),
		lruList:     list.New(),
	}
	for i := 0; i < poolSize; i++ {
		bp.frames[i] = NewFrame()
	}
	logger.Info("Buffer pool initialized",
		zap.Int("poolSize", poolSize),
		zap.Int("pageSize", heap.PageSize))
	return bp
}

// FetchPage returns the frame holding pageNo, reading it from disk on a
// miss. The frame comes back pinned; every fetch must be paired with an
// UnpinPage.
func (bp *BufferPool) FetchPage(pageNo uint32) (*Frame, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.metrics != nil {
		bp.metrics.FetchesCounter.Add(context.Background(), 1)
	}

	// 1. Resident: pin and move to the front of the LRU list.
	if frameIdx, ok := bp.pageTable[pageNo]; ok {
		frame := bp.frames[frameIdx]
		frame.Pin()
		if frame.LruElement() != nil {
			bp.lruList.MoveToFront(frame.LruElement())
		}
		if bp.metrics != nil {
			bp.metrics.HitsCounter.Add(context.Background(), 1)
		}
		return frame, nil
	}

	if bp.metrics != nil {
		bp.metrics.MissesCounter.Add(context.Background(), 1)
	}

	// 2. Miss: claim a victim frame.
	frameIdx, err := bp.getVictimFrameLocked()
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageNo, err)
	}
	victim := bp.frames[frameIdx]

	// 3. A dirty victim goes to disk before its frame is reused. Victims
	// are unpinned, and latches are only ever held under a pin, so this
	// read needs no latch.
	if victim.IsDirty() && victim.PageNo() != InvalidPageNo {
		if err := bp.diskManager.WritePage(victim.PageNo(), victim.Data()); err != nil {
			return nil, fmt.Errorf("flushing victim page %d: %w", victim.PageNo(), err)
		}
		victim.SetDirty(false)
		if bp.metrics != nil {
			bp.metrics.FlushesCounter.Add(context.Background(), 1)
		}
	}

	// 4. Drop the victim from the pool bookkeeping.
	if victim.PageNo() != InvalidPageNo {
		bp.logger.Debug("Evicting page",
			zap.Uint32("victim", victim.PageNo()),
			zap.Uint32("incoming", pageNo))
		delete(bp.pageTable, victim.PageNo())
		if victim.LruElement() != nil {
			bp.lruList.Remove(victim.LruElement())
		}
		if bp.metrics != nil {
			bp.metrics.EvictionsCounter.Add(context.Background(), 1)
		}
	}

	// 5. Reset and load the requested page.
	victim.Reset()
	if err := bp.diskManager.ReadPage(pageNo, victim.Data()); err != nil {
		// The frame stays free and untracked.
		return nil, fmt.Errorf("reading page %d: %w", pageNo, err)
	}

	// 6. Publish the frame.
	victim.SetPageNo(pageNo)
	victim.SetPinCount(1)
	victim.SetDirty(false)
	bp.pageTable[pageNo] = frameIdx
	victim.SetLruElement(bp.lruList.PushFront(frameIdx))
	return victim, nil
}

// getVictimFrameLocked claims a free frame while any remain, then falls back
// to the least recently used unpinned frame. Callers must hold bp.mu.
func (bp *BufferPool) getVictimFrameLocked() (int, error) {
	for i, frame := range bp.frames {
		if frame.PageNo() == InvalidPageNo {
			return i, nil
		}
	}
	for e := bp.lruList.Back(); e != nil; e = e.Prev() {
		frameIdx := e.Value.(int)
		if bp.frames[frameIdx].PinCount() == 0 {
			return frameIdx, nil
		}
	}
	return -1, ErrPoolFull
}

// UnpinPage releases one pin on pageNo. dirty records that the caller
// changed the frame's contents since fetching it.
func (bp *BufferPool) UnpinPage(pageNo uint32, dirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameIdx, ok := bp.pageTable[pageNo]
	if !ok {
		return fmt.Errorf("%w: page %d to unpin", ErrPageNotFound, pageNo)
	}
	frame := bp.frames[frameIdx]
	if frame.PinCount() == 0 {
		return fmt.Errorf("cannot unpin page %d, pin count is already zero", pageNo)
	}
	frame.Unpin()
	if dirty {
		frame.SetDirty(true)
	}
	return nil
}

// AllocatePage extends the heap file by one page and returns its pinned
// frame. The on-disk image is a valid empty page before this returns.
func (bp *BufferPool) AllocatePage() (*Frame, uint32, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	// 1. Disk first, so the page exists whatever happens to the pool.
	pageNo, err := bp.diskManager.AllocatePage()
	if err != nil {
		return nil, InvalidPageNo, err
	}

	// 2. Claim a frame. Without a free list there is no way to give the
	// disk page back; it stays an empty page until someone fetches it.
	frameIdx, err := bp.getVictimFrameLocked()
	if err != nil {
		bp.logger.Warn("No frame for freshly allocated page, it stays on disk only",
			zap.Uint32("pageNo", pageNo))
		return nil, InvalidPageNo, fmt.Errorf("frame for new page %d: %w", pageNo, err)
	}
	victim := bp.frames[frameIdx]

	// 3. Same eviction discipline as FetchPage.
	if victim.IsDirty() && victim.PageNo() != InvalidPageNo {
		if err := bp.diskManager.WritePage(victim.PageNo(), victim.Data()); err != nil {
			return nil, InvalidPageNo, fmt.Errorf("flushing victim page %d: %w", victim.PageNo(), err)
		}
		victim.SetDirty(false)
		if bp.metrics != nil {
			bp.metrics.FlushesCounter.Add(context.Background(), 1)
		}
	}
	if victim.PageNo() != InvalidPageNo {
		delete(bp.pageTable, victim.PageNo())
		if victim.LruElement() != nil {
			bp.lruList.Remove(victim.LruElement())
		}
		if bp.metrics != nil {
			bp.metrics.EvictionsCounter.Add(context.Background(), 1)
		}
	}

	// 4. Load the fresh empty page image and publish.
	victim.Reset()
	if err := bp.diskManager.ReadPage(pageNo, victim.Data()); err != nil {
		return nil, InvalidPageNo, fmt.Errorf("reading new page %d: %w", pageNo, err)
	}
	victim.SetPageNo(pageNo)
	victim.SetPinCount(1)
	victim.SetDirty(false)
	bp.pageTable[pageNo] = frameIdx
	victim.SetLruElement(bp.lruList.PushFront(frameIdx))

	bp.logger.Debug("Allocated page into pool",
		zap.Uint32("pageNo", pageNo),
		zap.Int("frame", frameIdx))
	return victim, pageNo, nil
}

// FlushPage writes pageNo back to disk if it is resident and dirty.
func (bp *BufferPool) FlushPage(pageNo uint32) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameIdx, ok := bp.pageTable[pageNo]
	if !ok {
		return fmt.Errorf("%w: page %d to flush", ErrPageNotFound, pageNo)
	}
	frame := bp.frames[frameIdx]
	if !frame.IsDirty() {
		return nil
	}
	// The shared latch keeps a concurrent Update or AppendRecord from
	// republishing the buffer mid-write. Latch holders release before they
	// unpin, and unpinning needs bp.mu, so waiting here cannot deadlock.
	frame.RLock()
	err := bp.diskManager.WritePage(pageNo, frame.Data())
	frame.RUnlock()
	if err != nil {
		return fmt.Errorf("flushing page %d: %w", pageNo, err)
	}
	frame.SetDirty(false)
	if bp.metrics != nil {
		bp.metrics.FlushesCounter.Add(context.Background(), 1)
	}
	return nil
}

// FlushAll writes every dirty frame back and syncs the heap file. It keeps
// going past individual failures and returns the first one.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	var firstErr error
	for _, frame := range bp.frames {
		if frame.PageNo() == InvalidPageNo || !frame.IsDirty() {
			continue
		}
		frame.RLock()
		err := bp.diskManager.WritePage(frame.PageNo(), frame.Data())
		frame.RUnlock()
		if err != nil {
			bp.logger.Error("Flush failed", zap.Uint32("pageNo", frame.PageNo()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		frame.SetDirty(false)
		if bp.metrics != nil {
			bp.metrics.FlushesCounter.Add(context.Background(), 1)
		}
	}
	if err := bp.diskManager.Sync(); err != nil {
		bp.logger.Error("Sync failed during flush all", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes everything. The disk manager stays open; it belongs to
// whoever created it.
func (bp *BufferPool) Close() error {
	return bp.FlushAll()
}

// View runs fn against a read-latched parse of pageNo. The pin and latch are
// held for the duration of fn, so the heap.Page and every view derived from
// it are valid inside fn and must not escape it.
func (bp *BufferPool) View(pageNo uint32, fn func(*heap.Page) error) error {
	frame, err := bp.FetchPage(pageNo)
	if err != nil {
		return err
	}
	frame.RLock()

	page, err := heap.Open(frame.Data())
	if err != nil {
		frame.RUnlock()
		_ = bp.UnpinPage(pageNo, false)
		if bp.metrics != nil {
			bp.metrics.CorruptedCounter.Add(context.Background(), 1)
		}
		return fmt.Errorf("opening page %d: %w", pageNo, err)
	}

	fnErr := fn(page)
	frame.RUnlock()
	if err := bp.UnpinPage(pageNo, false); err != nil && fnErr == nil {
		fnErr = err
	}
	return fnErr
}

// AppendRecord adds one line to pageNo: existing lines are re-packed through
// a builder with the new line at the end, and the result replaces the
// frame's contents. ErrPageFull when the line does not fit. Which page to
// append to is the caller's placement decision; the pool only executes it.
func (bp *BufferPool) AppendRecord(pageNo uint32, pointers []heap.Pointer, rec heap.Record) error {
	frame, err := bp.FetchPage(pageNo)
	if err != nil {
		return err
	}
	frame.Lock()

	page, err := heap.Open(frame.Data())
	if err != nil {
		frame.Unlock()
		_ = bp.UnpinPage(pageNo, false)
		if bp.metrics != nil {
			bp.metrics.CorruptedCounter.Add(context.Background(), 1)
		}
		return fmt.Errorf("opening page %d: %w", pageNo, err)
	}

	builder, err := heap.NewPageBuilder(page.PageNumber())
	if err != nil {
		frame.Unlock()
		_ = bp.UnpinPage(pageNo, false)
		return err
	}
	builder.SetWriteSwitch(page.Header().WriteSwitch())
	for i := 0; i < page.Len(); i++ {
		ptrs, perr := page.Pointers(i)
		if perr == nil {
			var r heap.Record
			if r, perr = page.Record(i); perr == nil {
				perr = builder.AppendLine(ptrs, r)
			}
		}
		if perr != nil {
			frame.Unlock()
			_ = bp.UnpinPage(pageNo, false)
			return fmt.Errorf("repacking page %d slot %d: %w", pageNo, i, perr)
		}
	}
	if err := builder.AppendLine(pointers, rec); err != nil {
		frame.Unlock()
		_ = bp.UnpinPage(pageNo, false)
		return fmt.Errorf("appending to page %d: %w", pageNo, err)
	}

	built, err := builder.Build()
	if err != nil {
		frame.Unlock()
		_ = bp.UnpinPage(pageNo, false)
		return fmt.Errorf("rebuilding page %d: %w", pageNo, err)
	}
	frame.SetData(built)
	frame.Unlock()
	return bp.UnpinPage(pageNo, true)
}

// Update runs fn against a write-latched parse of pageNo. When fn leaves the
// page modified, the page is rebuilt into a fresh buffer, published into the
// frame under the exclusive latch, and the frame is marked dirty. The
// original bytes are never edited in place, so a failed fn or a failed
// rebuild leaves the frame exactly as fetched.
func (bp *BufferPool) Update(pageNo uint32, fn func(*heap.Page) error) error {
	frame, err := bp.FetchPage(pageNo)
	if err != nil {
		return err
	}
	frame.Lock()

	page, err := heap.Open(frame.Data())
	if err != nil {
		frame.Unlock()
		_ = bp.UnpinPage(pageNo, false)
		if bp.metrics != nil {
			bp.metrics.CorruptedCounter.Add(context.Background(), 1)
		}
		return fmt.Errorf("opening page %d: %w", pageNo, err)
	}

	if err := fn(page); err != nil {
		frame.Unlock()
		_ = bp.UnpinPage(pageNo, false)
		return err
	}

	dirty := false
	if page.Modified() {
		rebuilt, err := page.Rebuild()
		if err != nil {
			frame.Unlock()
			_ = bp.UnpinPage(pageNo, false)
			return fmt.Errorf("rebuilding page %d: %w", pageNo, err)
		}
		frame.SetData(rebuilt)
		dirty = true
	}

	frame.Unlock()
	return bp.UnpinPage(pageNo, dirty)
}

// Package heap_file stores pages in a single on-disk file. Block 0 holds the
// file header; page N lives at byte offset N*heap.PageSize, so page numbers
// start at 1. The disk manager moves whole pages and extends the file; which
// page a record lands on is decided by the layers above.
package heap_file

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tatami-db/tatami/core/storage_engine/heap"
	"go.uber.org/zap"
)

const (
	// MagicNumber marks a heap file, "TATM" in ASCII.
	MagicNumber uint32 = 0x5441544D

	// FormatVersion is the current heap file format version.
	FormatVersion uint32 = 1

	// fileHeaderSize is the encoded FileHeader length. The header block is
	// still a full heap.PageSize on disk; the rest is reserved.
	fileHeaderSize = 16
)

var (
	ErrIO            = errors.New("heap file io error")
	ErrFileExists    = errors.New("heap file already exists")
	ErrFileNotFound  = errors.New("heap file not found")
	ErrBadFileHeader = errors.New("invalid heap file header")
	ErrClosed        = errors.New("heap file is closed")
	ErrPageLimit     = errors.New("page number out of range")
)

// FileHeader is the block 0 metadata: magic, format version, the page size
// the file was written with, and the number of allocated pages.
type FileHeader struct {
	Magic     uint32
	Version   uint32
	PageSize  uint32
	PageCount uint32
}

func (h FileHeader) encode() []byte {
	out := make([]byte, fileHeaderSize)
	binary.BigEndian.PutUint32(out[0:4], h.Magic)
	binary.BigEndian.PutUint32(out[4:8], h.Version)
	binary.BigEndian.PutUint32(out[8:12], h.PageSize)
	binary.BigEndian.PutUint32(out[12:16], h.PageCount)
	return out
}

func decodeFileHeader(b []byte) FileHeader {
	return FileHeader{
		Magic:     binary.BigEndian.Uint32(b[0:4]),
		Version:   binary.BigEndian.Uint32(b[4:8]),
		PageSize:  binary.BigEndian.Uint32(b[8:12]),
		PageCount: binary.BigEndian.Uint32(b[12:16]),
	}
}

// DiskManager owns the heap file handle and serializes all access to it.
type DiskManager struct {
	path   string
	logger *zap.Logger

	mu        sync.Mutex
	file      *os.File
	pageCount uint32
}

// NewDiskManager prepares a manager for the file at path. Nothing is opened
// until OpenOrCreate.
func NewDiskManager(path string, logger *zap.Logger) *DiskManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskManager{path: path, logger: logger}
}

// Path returns the heap file path.
func (dm *DiskManager) Path() string { return dm.path }

// OpenOrCreate opens the heap file, or creates it when create is true. Create
// fails on an existing file (ErrFileExists) and open fails on a missing one
// (ErrFileNotFound). An opened file must carry the right magic, version and
// page size, and must be at least as long as its header claims.
func (dm *DiskManager) OpenOrCreate(create bool) (*FileHeader, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	_, statErr := os.Stat(dm.path)
	switch {
	case os.IsNotExist(statErr):
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, dm.path)
		}
		return dm.createLocked()
	case statErr == nil:
		if create {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, dm.path)
		}
		return dm.openLocked()
	default:
		return nil, fmt.Errorf("%w: stating %s: %v", ErrIO, dm.path, statErr)
	}
}

func (dm *DiskManager) createLocked() (*FileHeader, error) {
	file, err := os.OpenFile(dm.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, dm.path, err)
	}
	dm.file = file

	header := FileHeader{
		Magic:    MagicNumber,
		Version:  FormatVersion,
		PageSize: heap.PageSize,
	}
	if err := dm.writeHeaderLocked(header); err != nil {
		dm.file.Close()
		dm.file = nil
		_ = os.Remove(dm.path)
		return nil, err
	}
	dm.pageCount = 0

	dm.logger.Info("Created heap file",
		zap.String("path", dm.path),
		zap.Uint32("pageSize", header.PageSize))
	return &header, nil
}

func (dm *DiskManager) openLocked() (*FileHeader, error) {
	file, err := os.OpenFile(dm.path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, dm.path, err)
	}

	block := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(file, 0, fileHeaderSize), block); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s is too short to hold a file header", ErrBadFileHeader, dm.path)
	}
	header := decodeFileHeader(block)

	if header.Magic != MagicNumber {
		file.Close()
		return nil, fmt.Errorf("%w: magic 0x%08X, want 0x%08X", ErrBadFileHeader, header.Magic, MagicNumber)
	}
	if header.Version != FormatVersion {
		file.Close()
		return nil, fmt.Errorf("%w: format version %d, supported %d", ErrBadFileHeader, header.Version, FormatVersion)
	}
	if header.PageSize != heap.PageSize {
		file.Close()
		return nil, fmt.Errorf("%w: page size %d, built for %d", ErrBadFileHeader, header.PageSize, heap.PageSize)
	}

	// The header block plus PageCount pages is the minimum legal size. A
	// longer file can happen after a crash between extend and header write;
	// those pages were never published, so they are simply ignored.
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: stating %s: %v", ErrIO, dm.path, err)
	}
	minSize := int64(header.PageCount+1) * heap.PageSize
	if fi.Size() < minSize {
		file.Close()
		return nil, fmt.Errorf("%w: file is %d bytes, header claims %d pages (%d bytes)", ErrBadFileHeader, fi.Size(), header.PageCount, minSize)
	}

	dm.file = file
	dm.pageCount = header.PageCount
	dm.logger.Debug("Opened heap file",
		zap.String("path", dm.path),
		zap.Uint32("pages", dm.pageCount))
	return &header, nil
}

// writeHeaderLocked rewrites block 0 and syncs so allocation state survives
// a crash.
func (dm *DiskManager) writeHeaderLocked(header FileHeader) error {
	block := make([]byte, heap.PageSize)
	copy(block, header.encode())
	if _, err := dm.file.WriteAt(block, 0); err != nil {
		return fmt.Errorf("%w: writing file header: %v", ErrIO, err)
	}
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing file header: %v", ErrIO, err)
	}
	return nil
}

// ReadPage reads page pageNo into buf, which must be exactly one page.
func (dm *DiskManager) ReadPage(pageNo uint32, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrClosed
	}
	if len(buf) != heap.PageSize {
		return fmt.Errorf("%w: page buffer must be %d bytes, got %d", ErrIO, heap.PageSize, len(buf))
	}
	if pageNo == 0 || pageNo > dm.pageCount {
		return fmt.Errorf("%w: page %d, file has pages 1..%d", ErrPageLimit, pageNo, dm.pageCount)
	}

	offset := int64(pageNo) * heap.PageSize
	n, err := dm.file.ReadAt(buf, offset)
	if err != nil {
		return fmt.Errorf("%w: reading page %d at offset %d: %v", ErrIO, pageNo, offset, err)
	}
	if n != heap.PageSize {
		return fmt.Errorf("%w: short read for page %d, got %d of %d bytes", ErrIO, pageNo, n, heap.PageSize)
	}
	return nil
}

// WritePage writes one page image at pageNo's slot. Durability is deferred
// to Sync; the buffer pool decides when to pay for it.
func (dm *DiskManager) WritePage(pageNo uint32, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrClosed
	}
	if len(buf) != heap.PageSize {
		return fmt.Errorf("%w: page buffer must be %d bytes, got %d", ErrIO, heap.PageSize, len(buf))
	}
	if pageNo == 0 || pageNo > dm.pageCount {
		return fmt.Errorf("%w: page %d, file has pages 1..%d", ErrPageLimit, pageNo, dm.pageCount)
	}

	offset := int64(pageNo) * heap.PageSize
	if _, err := dm.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: writing page %d at offset %d: %v", ErrIO, pageNo, offset, err)
	}
	return nil
}

// AllocatePage extends the file by one freshly built empty page and returns
// its number. The page image is valid from the start, so a crash right after
// allocation leaves nothing unreadable.
func (dm *DiskManager) AllocatePage() (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return 0, ErrClosed
	}
	next := dm.pageCount + 1
	if next > heap.MaxPageNumber {
		return 0, fmt.Errorf("%w: cannot allocate page %d, pointers address up to %d", ErrPageLimit, next, heap.MaxPageNumber)
	}

	builder, err := heap.NewPageBuilder(int(next))
	if err != nil {
		return 0, err
	}
	empty, err := builder.Build()
	if err != nil {
		return 0, err
	}
	if _, err := dm.file.WriteAt(empty, int64(next)*heap.PageSize); err != nil {
		return 0, fmt.Errorf("%w: extending file for page %d: %v", ErrIO, next, err)
	}

	dm.pageCount = next
	header := FileHeader{
		Magic:     MagicNumber,
		Version:   FormatVersion,
		PageSize:  heap.PageSize,
		PageCount: dm.pageCount,
	}
	if err := dm.writeHeaderLocked(header); err != nil {
		dm.pageCount-- // the new page stays unpublished
		return 0, err
	}

	dm.logger.Debug("Allocated page", zap.Uint32("pageNo", next))
	return next, nil
}

// PageCount returns the number of allocated pages.
func (dm *DiskManager) PageCount() uint32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.pageCount
}

// Sync flushes file contents to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrClosed
	}
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrIO, err)
	}
	return nil
}

// Close syncs and closes the file. Further calls on the manager return
// ErrClosed.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		dm.logger.Error("Sync on close failed", zap.Error(err))
	}
	err := dm.file.Close()
	dm.file = nil
	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrIO, err)
	}
	return nil
}

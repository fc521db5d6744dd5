package heap_file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tatami-db/tatami/core/storage_engine/heap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// snapshotChunkSize is the read/write granularity of a snapshot copy, a
// whole number of pages so throttling never splits a page across waits.
const snapshotChunkSize = 1024 * heap.PageSize // 4 MiB

var chunkPool = sync.Pool{
	New: func() interface{} { return make([]byte, snapshotChunkSize) },
}

// ErrSnapshotVerify means the copied file does not match the source.
var ErrSnapshotVerify = errors.New("snapshot verification failed")

// SnapshotOptions tunes a snapshot copy.
type SnapshotOptions struct {
	// RateBytesPerSec caps copy throughput; zero or negative means no limit.
	RateBytesPerSec int64
	// Verify re-reads the copy and compares sha256 sums with the source.
	Verify bool
	// Logger receives progress logs; nil disables them.
	Logger *zap.Logger
}

// SnapshotInfo describes a finished snapshot.
type SnapshotInfo struct {
	ID      string
	Path    string
	Bytes   int64
	Pages   uint32
	SHA256  string // hex source checksum, set when Verify was requested
	Elapsed time.Duration
}

// Snapshot copies the heap file at srcPath into dstDir under a fresh
// uuid-tagged name, throttled to the requested byte rate. The source must
// not be receiving writes while the copy runs; run it against a closed or
// sync-quiesced file. The copy's file header is validated before the
// snapshot is declared good, so a snapshot that returns nil error is an
// openable heap file.
func Snapshot(ctx context.Context, srcPath, dstDir string, opts SnapshotOptions) (*SnapshotInfo, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	id := uuid.New().String()
	dstPath := filepath.Join(dstDir, fmt.Sprintf("%s.%s.snapshot", filepath.Base(srcPath), id))

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open source: %v", ErrIO, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: create snapshot: %v", ErrIO, err)
	}
	defer dst.Close()

	var limiter *rate.Limiter
	if opts.RateBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateBytesPerSec), snapshotChunkSize)
	}
	logger.Info("Snapshot started",
		zap.String("source", srcPath),
		zap.String("snapshot", dstPath),
		zap.Int64("rateBytesPerSec", opts.RateBytesPerSec))

	var (
		readOff int64
		srcSum  = sha256.New()
	)
	for {
		if err := ctx.Err(); err != nil {
			_ = os.Remove(dstPath)
			return nil, fmt.Errorf("snapshot aborted: %w", err)
		}

		buf := chunkPool.Get().([]byte)
		n, rerr := src.ReadAt(buf[:snapshotChunkSize], readOff)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					chunkPool.Put(buf)
					_ = os.Remove(dstPath)
					return nil, fmt.Errorf("snapshot aborted: %w", err)
				}
			}

			w := 0
			for w < n {
				m, werr := dst.Write(buf[w:n])
				if werr != nil {
					chunkPool.Put(buf)
					_ = os.Remove(dstPath)
					return nil, fmt.Errorf("%w: writing snapshot: %v", ErrIO, werr)
				}
				w += m
			}

			if opts.Verify {
				srcSum.Write(buf[:n])
			}
			readOff += int64(n)
		}
		chunkPool.Put(buf)

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			_ = os.Remove(dstPath)
			return nil, fmt.Errorf("%w: reading source: %v", ErrIO, rerr)
		}
	}

	if err := dst.Sync(); err != nil {
		_ = os.Remove(dstPath)
		return nil, fmt.Errorf("%w: syncing snapshot: %v", ErrIO, err)
	}

	info := &SnapshotInfo{
		ID:    id,
		Path:  dstPath,
		Bytes: readOff,
	}

	if opts.Verify {
		info.SHA256 = hex.EncodeToString(srcSum.Sum(nil))
		copySum, err := fileSHA256(dstPath)
		if err != nil {
			_ = os.Remove(dstPath)
			return nil, err
		}
		if copySum != info.SHA256 {
			_ = os.Remove(dstPath)
			return nil, fmt.Errorf("%w: source sha256 %s, copy sha256 %s", ErrSnapshotVerify, info.SHA256, copySum)
		}
	}

	// A snapshot must at least open: right size, right header, read back
	// from the copy itself.
	if readOff < heap.PageSize || readOff%heap.PageSize != 0 {
		_ = os.Remove(dstPath)
		return nil, fmt.Errorf("%w: snapshot is %d bytes, not a whole number of pages", ErrBadFileHeader, readOff)
	}
	header, err := readFileHeader(dstPath)
	if err != nil {
		_ = os.Remove(dstPath)
		return nil, err
	}
	if header.Magic != MagicNumber {
		_ = os.Remove(dstPath)
		return nil, fmt.Errorf("%w: snapshot magic 0x%08X, want 0x%08X", ErrBadFileHeader, header.Magic, MagicNumber)
	}
	info.Pages = uint32(readOff/heap.PageSize) - 1

	info.Elapsed = time.Since(start)
	logger.Info("Snapshot complete",
		zap.String("id", info.ID),
		zap.Int64("bytes", info.Bytes),
		zap.Uint32("pages", info.Pages),
		zap.Duration("elapsed", info.Elapsed))
	return info, nil
}

// readFileHeader decodes block 0 of the file at path.
func readFileHeader(path string) (FileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileHeader{}, fmt.Errorf("%w: open for header check: %v", ErrIO, err)
	}
	defer f.Close()
	block := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, fileHeaderSize), block); err != nil {
		return FileHeader{}, fmt.Errorf("%w: %s is too short to hold a file header", ErrBadFileHeader, path)
	}
	return decodeFileHeader(block), nil
}

// fileSHA256 hashes a whole file.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open for checksum: %v", ErrIO, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: checksum read: %v", ErrIO, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

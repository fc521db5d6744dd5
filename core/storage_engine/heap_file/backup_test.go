package heap_file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tatami-db/tatami/core/storage_engine/heap"
	"go.uber.org/zap"
)

// setupSourceFile builds a heap file with pages pages of real records and
// returns its path.
func setupSourceFile(t *testing.T, pages int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.tatami")
	dm := NewDiskManager(path, zap.NewNop())
	_, err := dm.OpenOrCreate(true)
	require.NoError(t, err)
	defer dm.Close()

	for i := 1; i <= pages; i++ {
		pageNo, err := dm.AllocatePage()
		require.NoError(t, err)
		img := buildRecordPage(t, pageNo, "snapshot payload")
		require.NoError(t, dm.WritePage(pageNo, img))
	}
	require.NoError(t, dm.Sync())
	return path
}

// TestSnapshot_CopyVerifyAndReopen runs a verified snapshot and proves the
// result is a byte-identical, openable heap file.
func TestSnapshot_CopyVerifyAndReopen(t *testing.T) {
	src := setupSourceFile(t, 3)
	dstDir := t.TempDir()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	info, err := Snapshot(context.Background(), src, dstDir, SnapshotOptions{
		Verify: true,
		Logger: logger,
	})
	require.NoError(t, err)
	require.NotEmpty(t, info.ID)
	require.Equal(t, uint32(3), info.Pages)
	require.Equal(t, int64(4*heap.PageSize), info.Bytes, "header block plus three pages")

	// Byte-identical copy.
	srcSum, err := fileSHA256(src)
	require.NoError(t, err)
	require.Equal(t, srcSum, info.SHA256)
	copySum, err := fileSHA256(info.Path)
	require.NoError(t, err)
	require.Equal(t, srcSum, copySum)

	// The snapshot opens like any heap file and serves its records.
	dm := NewDiskManager(info.Path, zap.NewNop())
	header, err := dm.OpenOrCreate(false)
	require.NoError(t, err)
	defer dm.Close()
	require.Equal(t, uint32(3), header.PageCount)

	buf := make([]byte, heap.PageSize)
	require.NoError(t, dm.ReadPage(2, buf))
	page, err := heap.Open(buf)
	require.NoError(t, err)
	rec, err := page.Record(0)
	require.NoError(t, err)
	require.Equal(t, []byte("snapshot payload"), rec.Payload())
}

// TestSnapshot_Throttled keeps the copy correct when a rate limit is set.
func TestSnapshot_Throttled(t *testing.T) {
	src := setupSourceFile(t, 2)
	dstDir := t.TempDir()

	info, err := Snapshot(context.Background(), src, dstDir, SnapshotOptions{
		RateBytesPerSec: 64 * 1024 * 1024,
		Verify:          true,
	})
	require.NoError(t, err)
	require.Equal(t, uint32(2), info.Pages)
}

// TestSnapshot_ContextCanceled aborts cleanly and leaves no partial file
// behind.
func TestSnapshot_ContextCanceled(t *testing.T) {
	src := setupSourceFile(t, 2)
	dstDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Snapshot(ctx, src, dstDir, SnapshotOptions{})
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dstDir)
	require.NoError(t, err)
	require.Empty(t, entries, "aborted snapshots must clean up after themselves")
}

// TestSnapshot_RejectsForeignFile refuses sources that are not heap files.
func TestSnapshot_RejectsForeignFile(t *testing.T) {
	dstDir := t.TempDir()

	t.Run("ragged size", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "ragged")
		require.NoError(t, os.WriteFile(src, []byte("ten bytes."), 0644))
		_, err := Snapshot(context.Background(), src, dstDir, SnapshotOptions{})
		require.ErrorIs(t, err, ErrBadFileHeader)
	})

	t.Run("wrong magic", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "foreign")
		require.NoError(t, os.WriteFile(src, make([]byte, heap.PageSize), 0644))
		_, err := Snapshot(context.Background(), src, dstDir, SnapshotOptions{})
		require.ErrorIs(t, err, ErrBadFileHeader)
	})

	entries, err := os.ReadDir(dstDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestSnapshot_MissingSource surfaces the open failure.
func TestSnapshot_MissingSource(t *testing.T) {
	_, err := Snapshot(context.Background(), filepath.Join(t.TempDir(), "absent"), t.TempDir(), SnapshotOptions{})
	require.ErrorIs(t, err, ErrIO)
}

// TestSnapshot_UnverifiedStillChecksHeader: with Verify off there is no
// checksum pass, but the copy's own header is still read back and gates
// success.
func TestSnapshot_UnverifiedStillChecksHeader(t *testing.T) {
	src := setupSourceFile(t, 1)
	dstDir := t.TempDir()

	info, err := Snapshot(context.Background(), src, dstDir, SnapshotOptions{})
	require.NoError(t, err)
	require.Empty(t, info.SHA256, "no checksum was requested")

	header, err := readFileHeader(info.Path)
	require.NoError(t, err)
	require.Equal(t, MagicNumber, header.Magic)
	require.Equal(t, uint32(1), header.PageCount)
}

// TestReadFileHeader decodes block 0 straight from a path.
func TestReadFileHeader(t *testing.T) {
	t.Run("heap file", func(t *testing.T) {
		path := setupSourceFile(t, 2)
		header, err := readFileHeader(path)
		require.NoError(t, err)
		require.Equal(t, MagicNumber, header.Magic)
		require.Equal(t, FormatVersion, header.Version)
		require.Equal(t, uint32(heap.PageSize), header.PageSize)
		require.Equal(t, uint32(2), header.PageCount)
	})

	t.Run("short file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stub")
		require.NoError(t, os.WriteFile(path, []byte{0x54}, 0644))
		_, err := readFileHeader(path)
		require.ErrorIs(t, err, ErrBadFileHeader)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readFileHeader(filepath.Join(t.TempDir(), "absent"))
		require.ErrorIs(t, err, ErrIO)
	})
}

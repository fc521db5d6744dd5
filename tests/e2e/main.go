// End-to-end smoke test for the tatami storage stack: heap file, buffer
// pool, page codec and snapshot copy, driven the way a real embedder would.
// Exits non-zero on the first mismatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tatami-db/tatami/core/storage_engine/heap"
	"github.com/tatami-db/tatami/core/storage_engine/heap_file"
	"github.com/tatami-db/tatami/core/write_engine/buffer_pool"
	"github.com/tatami-db/tatami/pkg/logger"
	"github.com/tatami-db/tatami/pkg/telemetry"
)

const (
	dataPages      = 8  // pages to allocate and fill
	recordsPerPage = 16 // records appended to each page
	bufferPoolSize = 4  // frames, deliberately smaller than dataPages to force eviction
	recordTag      = 7
	snapshotRate   = 32 * 1024 * 1024 // bytes/sec for the throttled copy
)

var (
	workDir        = flag.String("dir", "", "Working directory (default: a fresh temp dir, removed on success)")
	logLevel       = flag.String("log_level", "info", "Log level (debug, info, warn, error)")
	telemetryOn    = flag.Bool("telemetry", false, "Expose buffer pool metrics on a Prometheus endpoint")
	prometheusPort = flag.Int("prometheus_port", 9464, "Prometheus /metrics port when telemetry is enabled")
)

// payloadFor makes each record's payload unique per (page, slot) so a
// misplaced write cannot go unnoticed.
func payloadFor(pageNo uint32, slot int) []byte {
	return []byte(fmt.Sprintf("page-%d-record-%d", pageNo, slot))
}

func main() {
	flag.Parse()

	logCfg := logger.DefaultConfig()
	logCfg.Level = *logLevel
	zlogger, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	tel, telShutdown, err := telemetry.New(telemetry.Config{
		Enabled:        *telemetryOn,
		ServiceName:    "tatami-e2e",
		PrometheusPort: *prometheusPort,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer telShutdown(context.Background())

	dir := *workDir
	cleanup := false
	if dir == "" {
		dir, err = os.MkdirTemp("", "tatami_e2e_")
		if err != nil {
			log.Fatalf("Failed to create work dir: %v", err)
		}
		cleanup = true
	}
	filePath := filepath.Join(dir, "e2e.tatami")
	snapshotDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		log.Fatalf("Failed to create snapshot dir: %v", err)
	}

	// --- Scenario 1: Create, fill and edit through the buffer pool ---
	fmt.Println("\n--- Scenario 1: Create, fill and edit through the buffer pool ---")

	dm := heap_file.NewDiskManager(filePath, zlogger)
	if _, err := dm.OpenOrCreate(true); err != nil {
		log.Fatalf("Failed to create heap file: %v", err)
	}

	poolMetrics, err := buffer_pool.NewMetrics(tel.Meter)
	if err != nil {
		log.Fatalf("Failed to create buffer pool metrics: %v", err)
	}
	pool := buffer_pool.NewBufferPool(bufferPoolSize, dm, zlogger, poolMetrics)

	for i := 0; i < dataPages; i++ {
		_, pageNo, err := pool.AllocatePage()
		if err != nil {
			log.Fatalf("Failed to allocate page %d: %v", i+1, err)
		}
		if err := pool.UnpinPage(pageNo, false); err != nil {
			log.Fatalf("Failed to unpin page %d: %v", pageNo, err)
		}
		for slot := 0; slot < recordsPerPage; slot++ {
			rec := heap.NewRecord(recordTag, payloadFor(pageNo, slot))
			if err := pool.AppendRecord(pageNo, nil, rec); err != nil {
				log.Fatalf("Failed to append record %d to page %d: %v", slot, pageNo, err)
			}
		}
		fmt.Printf("Filled page %d with %d records\n", pageNo, recordsPerPage)
	}

	// Edit page 1 in place: replace slot 0, drop the last slot. The pool
	// publishes the rebuilt image; later scenarios must see exactly this.
	edited := heap.NewRecord(recordTag+1, []byte("edited through Update"))
	if err := pool.Update(1, func(p *heap.Page) error {
		if err := p.Set(0, edited); err != nil {
			return err
		}
		return p.Remove(p.Len() - 1)
	}); err != nil {
		log.Fatalf("Failed to update page 1: %v", err)
	}
	fmt.Println("Edited page 1 (replaced slot 0, removed last slot)")

	if err := pool.Close(); err != nil {
		log.Fatalf("Failed to flush buffer pool: %v", err)
	}
	if err := dm.Close(); err != nil {
		log.Fatalf("Failed to close heap file: %v", err)
	}
	fmt.Println("Flushed all pages and closed the file")

	// --- Scenario 2: Cold reopen, verify every record straight off disk ---
	fmt.Println("\n--- Scenario 2: Cold reopen and full verification ---")

	dm2 := heap_file.NewDiskManager(filePath, zlogger)
	header, err := dm2.OpenOrCreate(false)
	if err != nil {
		log.Fatalf("Failed to reopen heap file: %v", err)
	}
	if header.PageCount != dataPages {
		log.Fatalf("Page count mismatch after reopen: got %d, want %d", header.PageCount, dataPages)
	}
	verifyAllPages(dm2, "after reopen")
	fmt.Printf("Verified %d pages after cold reopen\n", dataPages)

	// --- Scenario 3: Throttled snapshot, then verify the copy stands alone ---
	fmt.Println("\n--- Scenario 3: Throttled snapshot and copy verification ---")

	info, err := heap_file.Snapshot(context.Background(), filePath, snapshotDir, heap_file.SnapshotOptions{
		RateBytesPerSec: snapshotRate,
		Verify:          true,
		Logger:          zlogger,
	})
	if err != nil {
		log.Fatalf("Snapshot failed: %v", err)
	}
	fmt.Printf("Snapshot %s: %d bytes, %d pages, sha256 %s\n", info.ID, info.Bytes, info.Pages, info.SHA256)

	snapDM := heap_file.NewDiskManager(info.Path, zlogger)
	if _, err := snapDM.OpenOrCreate(false); err != nil {
		log.Fatalf("Snapshot does not open as a heap file: %v", err)
	}
	verifyAllPages(snapDM, "in snapshot")
	if err := snapDM.Close(); err != nil {
		log.Fatalf("Failed to close snapshot: %v", err)
	}
	fmt.Println("Snapshot verified page by page")

	// --- Scenario 4: Corruption must be detected, not served ---
	fmt.Println("\n--- Scenario 4: Corruption detection ---")

	// Damage page 2's trailer page number directly on disk, then read it back
	// through the pool: Open must refuse with a page integrity error.
	raw := make([]byte, heap.PageSize)
	if err := dm2.ReadPage(2, raw); err != nil {
		log.Fatalf("Failed to read page 2 for corruption test: %v", err)
	}
	raw[heap.PageSize-1] ^= 0xFF
	if err := dm2.WritePage(2, raw); err != nil {
		log.Fatalf("Failed to write corrupted page 2: %v", err)
	}

	pool2 := buffer_pool.NewBufferPool(bufferPoolSize, dm2, zlogger, poolMetrics)
	err = pool2.View(2, func(*heap.Page) error { return nil })
	if err == nil {
		log.Fatalf("Corrupted page 2 was served without an error")
	}
	fmt.Printf("Corrupted page rejected as expected: %v\n", err)

	if err := dm2.Close(); err != nil {
		log.Fatalf("Failed to close heap file: %v", err)
	}

	if cleanup {
		if err := os.RemoveAll(dir); err != nil {
			fmt.Printf("Warning: failed to remove work dir %s: %v\n", dir, err)
		}
	} else {
		fmt.Printf("Work dir kept at %s\n", dir)
	}
	fmt.Println("\n--- E2E smoke test passed. ---")
}

// verifyAllPages reads every data page directly from the disk manager and
// checks each record against what Scenario 1 wrote, edits included.
func verifyAllPages(dm *heap_file.DiskManager, stage string) {
	buf := make([]byte, heap.PageSize)
	for pageNo := uint32(1); pageNo <= dataPages; pageNo++ {
		if err := dm.ReadPage(pageNo, buf); err != nil {
			log.Fatalf("Failed to read page %d %s: %v", pageNo, stage, err)
		}
		page, err := heap.Open(buf)
		if err != nil {
			log.Fatalf("Failed to open page %d %s: %v", pageNo, stage, err)
		}

		wantLen := recordsPerPage
		if pageNo == 1 {
			wantLen = recordsPerPage - 1 // one slot removed by the edit
		}
		if page.Len() != wantLen {
			log.Fatalf("Page %d %s: got %d records, want %d", pageNo, stage, page.Len(), wantLen)
		}

		for slot := 0; slot < page.Len(); slot++ {
			want := heap.NewRecord(recordTag, payloadFor(pageNo, slot))
			if pageNo == 1 && slot == 0 {
				want = heap.NewRecord(recordTag+1, []byte("edited through Update"))
			}
			got, err := page.Record(slot)
			if err != nil {
				log.Fatalf("Page %d slot %d %s: %v", pageNo, slot, stage, err)
			}
			if !got.Equal(want) {
				log.Fatalf("Page %d slot %d %s: got %q (tag %d), want %q (tag %d)",
					pageNo, slot, stage, got.Payload(), got.Tag(), want.Payload(), want.Tag())
			}
		}
	}
}

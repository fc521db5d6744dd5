// tatami_inspect is an interactive inspector for tatami heap files. It walks
// pages, decodes records and line indexes, hex-dumps regions, and can take a
// throttled snapshot, all against a closed file. Corrupt pages print their
// parse error instead of ending the session, which is the point of the tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/tatami-db/tatami/core/storage_engine/heap"
	"github.com/tatami-db/tatami/core/storage_engine/heap_file"
	"github.com/tatami-db/tatami/internal/hexdump"
	"github.com/tatami-db/tatami/pkg/logger"
	"go.uber.org/zap"
)

var (
	filePath     = flag.String("file", "", "Path to the heap file to inspect")
	snapshotRate = flag.Int64("rate", 8*1024*1024, "Snapshot copy rate in bytes/sec, 0 for unlimited")
	logLevel     = flag.String("log_level", "warn", "Log level (debug, info, warn, error)")
	logFormat    = flag.String("log_format", "console", "Log format (json or console)")
)

func main() {
	flag.Parse()
	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: tatami_inspect -file <heap file> [-rate BYTES_PER_SEC]")
		os.Exit(2)
	}

	zlogger, err := logger.New(logger.Config{
		Level:      *logLevel,
		Format:     *logFormat,
		OutputFile: "stderr",
	})
	if err != nil {
		log.Fatalf("CRITICAL: Can't initialize zap logger: %v", err)
	}

	dm := heap_file.NewDiskManager(*filePath, zlogger)
	header, err := dm.OpenOrCreate(false)
	if err != nil {
		zlogger.Fatal("Cannot open heap file", zap.String("file", *filePath), zap.Error(err))
	}
	defer dm.Close()

	fmt.Printf("tatami heap file inspector\n")
	printInfo(dm, header)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tatami> ",
		HistoryFile:     filepath.Join(os.TempDir(), "tatami_inspect.history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("info"),
			readline.PcItem("page"),
			readline.PcItem("records"),
			readline.PcItem("hex"),
			readline.PcItem("snapshot"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		zlogger.Fatal("Cannot initialize readline", zap.Error(err))
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "info":
			printInfo(dm, header)
		case "page":
			withPage(dm, fields[1:], printPage)
		case "records":
			withPage(dm, fields[1:], printRecords)
		case "hex":
			cmdHex(dm, fields[1:])
		case "snapshot":
			cmdSnapshot(dm, fields[1:], zlogger)
		case "help":
			printHelp()
		case "exit", "quit":
			return
		default:
			fmt.Printf("unknown command %q, try help\n", fields[0])
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  info                 file header and page count
  page N               header, trailer and line index of page N
  records N            decoded records of page N with pointer prefixes
  hex N [OFF [LEN]]    hex dump of page N, optionally a region of it
  snapshot DIR         throttled, verified copy of the file into DIR
  help                 this text
  exit                 leave
`)
}

func printInfo(dm *heap_file.DiskManager, header *heap_file.FileHeader) {
	fi, err := os.Stat(dm.Path())
	size := int64(-1)
	if err == nil {
		size = fi.Size()
	}
	fmt.Printf("  file:       %s (%d bytes)\n", dm.Path(), size)
	fmt.Printf("  magic:      0x%08X\n", header.Magic)
	fmt.Printf("  version:    %d\n", header.Version)
	fmt.Printf("  page size:  %d\n", header.PageSize)
	fmt.Printf("  pages:      %d (data pages 1..%d)\n", header.PageCount, header.PageCount)
}

// withPage parses the page number argument, reads the page, and hands it to
// fn. Read and parse failures are printed, never fatal.
func withPage(dm *heap_file.DiskManager, args []string, fn func(*heap.Page, []byte)) {
	pageNo, ok := parsePageNo(args)
	if !ok {
		return
	}
	buf := make([]byte, heap.PageSize)
	if err := dm.ReadPage(pageNo, buf); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	page, err := heap.Open(buf)
	if err != nil {
		fmt.Printf("page %d is corrupt: %v\n", pageNo, err)
		return
	}
	fn(page, buf)
}

func parsePageNo(args []string) (uint32, bool) {
	if len(args) < 1 {
		fmt.Println("need a page number, try help")
		return 0, false
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("bad page number %q\n", args[0])
		return 0, false
	}
	return uint32(n), true
}

func printPage(page *heap.Page, _ []byte) {
	h := page.Header()
	t := page.Trailer()
	fmt.Printf("page %d\n", page.PageNumber())
	fmt.Printf("  header:  calc_first=%s calc_last=%s available=%d write_switch=%d\n",
		h.CalcFirst(), h.CalcLast(), h.AvailableSpace(), h.WriteSwitch())
	fmt.Printf("  trailer: lines=%d page_number=%d\n", t.LineIndexCount(), t.PageNumber())
	if page.Len() == 0 {
		fmt.Println("  line index: empty")
		return
	}
	fmt.Println("  line index:")
	fmt.Println("    slot  type  offset  length  pointers")
	for i, entry := range page.Index() {
		fmt.Printf("    %4d  %4d  %6d  %6d  %8d\n",
			i, entry.RecordType(), entry.Offset(), entry.Length(), entry.PointerSize())
	}
}

func printRecords(page *heap.Page, _ []byte) {
	if page.Len() == 0 {
		fmt.Printf("page %d holds no records\n", page.PageNumber())
		return
	}
	for i := 0; i < page.Len(); i++ {
		rec, err := page.Record(i)
		if err != nil {
			fmt.Printf("  slot %d: %v\n", i, err)
			continue
		}
		ptrs, _ := page.Pointers(i)
		prefix := ""
		if len(ptrs) > 0 {
			parts := make([]string, len(ptrs))
			for j, p := range ptrs {
				parts[j] = p.String()
			}
			prefix = " via " + strings.Join(parts, ",")
		}
		fmt.Printf("  slot %d: tag=%d %s%s\n", i, rec.Tag(), payloadPreview(rec.Payload()), prefix)
	}
}

// payloadPreview renders a payload as a quoted string when printable, hex
// otherwise, truncated to keep rows on one line.
func payloadPreview(payload []byte) string {
	const max = 32
	truncated := false
	if len(payload) > max {
		payload, truncated = payload[:max], true
	}
	printable := true
	for _, b := range payload {
		if b < 0x20 || b >= 0x7f {
			printable = false
			break
		}
	}
	out := fmt.Sprintf("%x", payload)
	if printable {
		out = strconv.Quote(string(payload))
	}
	if truncated {
		out += "..."
	}
	return out
}

func cmdHex(dm *heap_file.DiskManager, args []string) {
	pageNo, ok := parsePageNo(args)
	if !ok {
		return
	}
	off, length := 0, heap.PageSize
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 || n >= heap.PageSize {
			fmt.Printf("bad offset %q\n", args[1])
			return
		}
		off, length = n, heap.PageSize-n
	}
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n <= 0 {
			fmt.Printf("bad length %q\n", args[2])
			return
		}
		if n < length {
			length = n
		}
	}

	buf := make([]byte, heap.PageSize)
	if err := dm.ReadPage(pageNo, buf); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Print(hexdump.Dump(buf[off:off+length], off))
}

func cmdSnapshot(dm *heap_file.DiskManager, args []string, zlogger *zap.Logger) {
	if len(args) < 1 {
		fmt.Println("need a destination directory, try help")
		return
	}
	info, err := heap_file.Snapshot(context.Background(), dm.Path(), args[0], heap_file.SnapshotOptions{
		RateBytesPerSec: *snapshotRate,
		Verify:          true,
		Logger:          zlogger,
	})
	if err != nil {
		fmt.Printf("snapshot failed: %v\n", err)
		return
	}
	fmt.Printf("snapshot %s\n", info.ID)
	fmt.Printf("  %s (%d bytes, %d pages, sha256 %s) in %s\n",
		info.Path, info.Bytes, info.Pages, info.SHA256, info.Elapsed)
}

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/store"
)

const exportPageSize = 500

// exportRecord is one line of an export archive: the run header first, then
// its events in journal order.
type exportRecord struct {
	Run   *store.Run   `json:"run,omitempty"`
	Event *store.Event `json:"event,omitempty"`
}

func runExport(args []string) error {
	var outputPath, runID string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		case "-run":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -run")
			}
			i++
			runID = args[i]
		}
	}

	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: convoy export -f <output.jsonl.zst> [-run <id>]\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Log)

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	var run *store.Run
	if runID == "" {
		run, err = db.LatestRun(cfg.Team.Name)
	} else {
		run, err = db.GetRun(runID)
	}
	if err != nil {
		return fmt.Errorf("find run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("no run found")
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	n, err := writeExport(f, db, run)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	info, _ := os.Stat(outputPath)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}

	fmt.Printf("Export complete: run %s, %d events, %s\n", run.ID, n, formatSize(size))
	return nil
}

// writeExport streams run and its events to w as zstd-compressed JSON lines
// and returns the number of events written.
func writeExport(w io.Writer, db *store.Store, run *store.Run) (int, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	enc := json.NewEncoder(zw)
	if err := enc.Encode(exportRecord{Run: run}); err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}

	count := 0
	var after int64
	for {
		events, err := db.ListEvents(run.ID, after, exportPageSize)
		if err != nil {
			return count, err
		}
		for i := range events {
			if err := enc.Encode(exportRecord{Event: &events[i]}); err != nil {
				return count, fmt.Errorf("write event: %w", err)
			}
			count++
		}
		if len(events) < exportPageSize {
			break
		}
		after = events[len(events)-1].ID
	}

	// Close explicitly to catch write errors
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("close zstd: %w", err)
	}
	return count, nil
}

func runInspect(args []string) error {
	var inputPath string
	for i := 0; i < len(args); i++ {
		if args[i] == "-f" && i+1 < len(args) {
			i++
			inputPath = args[i]
		}
	}
	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: convoy inspect -f <export.jsonl.zst>\n")
		return fmt.Errorf("missing -f flag")
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	run, counts, err := readExport(f)
	if err != nil {
		return err
	}

	fmt.Printf("Run:     %s\n", run.ID)
	fmt.Printf("Team:    %s (%d members, seed %d)\n", run.Team, len(run.Members), run.Seed)
	fmt.Printf("Status:  %s after %d ticks\n", run.Status, run.Ticks)
	types := make([]string, 0, len(counts))
	for typ := range counts {
		types = append(types, typ)
	}
	slices.Sort(types)
	for _, typ := range types {
		fmt.Printf("  %-20s %d\n", typ, counts[typ])
	}
	return nil
}

// readExport decodes an archive and counts its events by type.
func readExport(r io.Reader) (*store.Run, map[string]int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var run *store.Run
	counts := make(map[string]int)

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec exportRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, nil, fmt.Errorf("decode record: %w", err)
		}
		switch {
		case rec.Run != nil:
			run = rec.Run
		case rec.Event != nil:
			counts[rec.Event.Type]++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read archive: %w", err)
	}
	if run == nil {
		return nil, nil, fmt.Errorf("archive has no run header")
	}
	return run, counts, nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

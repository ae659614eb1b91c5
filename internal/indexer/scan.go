// Package indexer walks an audio archive and reconciles every recording
// into the catalog and the search index.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/burningmantech/ranger-transmissions/internal/store"
)

// Audio archives lay out recordings as
// SYSTEM/CHANNEL/STATION_YYYYMMDD-HHMMSS.EXT with timestamps in the
// archive's wall-clock zone.
const timestampLayout = "20060102-150405"

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
}

// ScanResult is one audio file discovered by a scan.
type ScanResult struct {
	Path      string // absolute path on disk
	Relative  string // path under the scan root, slash separated
	Station   string
	System    string
	Channel   string
	StartTime time.Time
}

// ScanItem is one scanner observation: a parsed audio file or a
// per-file failure.
type ScanItem struct {
	Result ScanResult
	Err    *FileError
}

// Scan walks root and yields one item per audio file. Nonconforming
// paths yield errors; non-audio files and dotfiles are skipped. Every
// call re-walks the directory; the channel closes when the walk
// finishes or ctx is canceled.
func Scan(ctx context.Context, root string) <-chan ScanItem {
	items := make(chan ScanItem)

	go func() {
		defer close(items)

		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil {
				send(ctx, items, ScanItem{Err: &FileError{Path: path, Stage: StageScan, Err: err}})
				if d == nil || d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if !audioExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			rel = filepath.ToSlash(rel)

			result, err := parseRelPath(rel)
			if err != nil {
				send(ctx, items, ScanItem{Err: &FileError{Path: rel, Stage: StageParse, Err: err}})
				return nil
			}
			result.Path = path
			send(ctx, items, ScanItem{Result: result})
			return nil
		})
	}()

	return items
}

func send(ctx context.Context, items chan<- ScanItem, item ScanItem) {
	select {
	case items <- item:
	case <-ctx.Done():
	}
}

// parseRelPath recovers station, system, channel, and start time from a
// path relative to the scan root.
func parseRelPath(rel string) (ScanResult, error) {
	parts := strings.Split(rel, "/")
	if len(parts) != 3 {
		return ScanResult{}, fmt.Errorf("want SYSTEM/CHANNEL/FILE, got %q", rel)
	}
	system, channel, base := parts[0], parts[1], parts[2]

	name := strings.TrimSuffix(base, filepath.Ext(base))
	i := strings.LastIndex(name, "_")
	if i < 1 || i == len(name)-1 {
		return ScanResult{}, fmt.Errorf("file name %q missing STATION_TIMESTAMP", base)
	}
	station, stamp := name[:i], name[i+1:]

	start, err := time.ParseInLocation(timestampLayout, stamp, store.ArchiveZone)
	if err != nil {
		return ScanResult{}, fmt.Errorf("timestamp %q: %w", stamp, err)
	}

	return ScanResult{
		Relative:  rel,
		Station:   station,
		System:    system,
		Channel:   channel,
		StartTime: start,
	}, nil
}

package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/burningmantech/ranger-transmissions/internal/store"
)

func writeArchiveFile(t *testing.T, root, rel, content string) string {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

func collectScan(t *testing.T, ctx context.Context, root string) (map[string]ScanResult, []*FileError) {
	t.Helper()

	results := map[string]ScanResult{}
	var errs []*FileError
	for item := range Scan(ctx, root) {
		if item.Err != nil {
			errs = append(errs, item.Err)
			continue
		}
		results[item.Result.Relative] = item.Result
	}
	return results, errs
}

func TestParseRelPath(t *testing.T) {
	tests := []struct {
		rel     string
		station string
		system  string
		channel string
		start   time.Time
	}{
		{
			rel:     "Ops1/1/Alpha_20230831-130000.wav",
			station: "Alpha",
			system:  "Ops1",
			channel: "1",
			start:   time.Date(2023, time.August, 31, 13, 0, 0, 0, store.ArchiveZone),
		},
		{
			rel:     "Events/North/Gate_Perimeter_20240901-081530.mp3",
			station: "Gate_Perimeter",
			system:  "Events",
			channel: "North",
			start:   time.Date(2024, time.September, 1, 8, 15, 30, 0, store.ArchiveZone),
		},
	}

	for _, test := range tests {
		got, err := parseRelPath(test.rel)
		if err != nil {
			t.Fatalf("parseRelPath(%q): %v", test.rel, err)
		}
		if got.Station != test.station {
			t.Errorf("%q station = %q, want %q", test.rel, got.Station, test.station)
		}
		if got.System != test.system {
			t.Errorf("%q system = %q, want %q", test.rel, got.System, test.system)
		}
		if got.Channel != test.channel {
			t.Errorf("%q channel = %q, want %q", test.rel, got.Channel, test.channel)
		}
		if !got.StartTime.Equal(test.start) {
			t.Errorf("%q start = %v, want %v", test.rel, got.StartTime, test.start)
		}
		if got.Relative != test.rel {
			t.Errorf("%q relative = %q", test.rel, got.Relative)
		}
	}
}

func TestParseRelPathRejects(t *testing.T) {
	bad := []string{
		"Alpha_20230831-130000.wav",
		"Ops1/Alpha_20230831-130000.wav",
		"Deep/Ops1/1/Alpha_20230831-130000.wav",
		"Ops1/1/Alpha.wav",
		"Ops1/1/_20230831-130000.wav",
		"Ops1/1/Alpha_.wav",
		"Ops1/1/Alpha_2023-08-31.wav",
		"Ops1/1/Alpha_20230831.wav",
	}

	for _, rel := range bad {
		if _, err := parseRelPath(rel); err == nil {
			t.Errorf("parseRelPath(%q) succeeded, want error", rel)
		}
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	alphaPath := writeArchiveFile(t, root, "Ops1/1/Alpha_20230831-130000.wav", "alpha audio")
	writeArchiveFile(t, root, "Ops1/2/Bravo_20230831-131500.mp3", "bravo audio")
	writeArchiveFile(t, root, "Ops1/1/.partial.wav", "ignored")
	writeArchiveFile(t, root, "Ops1/1/notes.txt", "ignored")
	writeArchiveFile(t, root, "Ops1/1/garbage.wav", "bad name")

	results, errs := collectScan(t, context.Background(), root)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %v", len(results), results)
	}
	alpha, ok := results["Ops1/1/Alpha_20230831-130000.wav"]
	if !ok {
		t.Fatalf("Alpha not scanned: %v", results)
	}
	if alpha.Path != alphaPath {
		t.Errorf("Alpha path = %q, want %q", alpha.Path, alphaPath)
	}
	if alpha.Station != "Alpha" || alpha.System != "Ops1" || alpha.Channel != "1" {
		t.Errorf("Alpha parsed as %+v", alpha)
	}
	if _, ok := results["Ops1/2/Bravo_20230831-131500.mp3"]; !ok {
		t.Errorf("Bravo not scanned: %v", results)
	}

	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if errs[0].Stage != StageParse {
		t.Errorf("error stage = %q, want %q", errs[0].Stage, StageParse)
	}
	if errs[0].Path != "Ops1/1/garbage.wav" {
		t.Errorf("error path = %q", errs[0].Path)
	}
}

func TestScanMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "no-such-archive")

	results, errs := collectScan(t, context.Background(), root)

	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if errs[0].Stage != StageScan {
		t.Errorf("error stage = %q, want %q", errs[0].Stage, StageScan)
	}
}

func TestScanCanceled(t *testing.T) {
	root := t.TempDir()
	writeArchiveFile(t, root, "Ops1/1/Alpha_20230831-130000.wav", "alpha audio")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, errs := collectScan(t, ctx, root)
	if len(results) != 0 || len(errs) != 0 {
		t.Errorf("canceled scan yielded %d results, %d errors", len(results), len(errs))
	}
}

package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/burningmantech/ranger-transmissions/internal/store"
)

// createTestIndex opens an in-memory index.
func createTestIndex(t *testing.T) *Index {
	t.Helper()

	ix, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return ix
}

func testTransmission(station, system, channel string, start time.Time) store.Transmission {
	return store.Transmission{
		EventID:   "2023",
		Station:   station,
		System:    system,
		Channel:   channel,
		StartTime: start,
		FileName:  station + ".wav",
	}
}

func TestSyncAndSearch(t *testing.T) {
	ix := createTestIndex(t)
	defer ix.Close()
	ctx := context.Background()

	base := time.Unix(1693512000, 0)
	alpha := testTransmission("Alpha", "Ops1", "1", base)
	alpha.SHA256 = "h1"
	bravo := testTransmission("Bravo", "Ops1", "2", base.Add(time.Minute))
	bravo.Transcription = "dust storm rolling in"

	for _, tx := range []store.Transmission{alpha, bravo} {
		if err := ix.Sync(ctx, tx); err != nil {
			t.Fatalf("Sync: %v", err)
		}
	}

	results, err := ix.Search(ctx, "Alpha", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Score <= 0 {
		t.Errorf("score = %v, want > 0", results[0].Score)
	}
	got := results[0].Transmission
	if got.Station != "Alpha" || got.SHA256 != "h1" {
		t.Errorf("transmission = %+v, want station Alpha sha h1", got)
	}
	if !got.StartTime.Equal(base) {
		t.Errorf("start time = %v, want %v", got.StartTime, base)
	}

	// Transcriptions are indexed too.
	results, err = ix.Search(ctx, "dust", 10)
	if err != nil {
		t.Fatalf("Search transcription: %v", err)
	}
	if len(results) != 1 || results[0].Transmission.Station != "Bravo" {
		t.Errorf("Search transcription = %+v, want Bravo", results)
	}
}

func TestSyncUpserts(t *testing.T) {
	ix := createTestIndex(t)
	defer ix.Close()
	ctx := context.Background()

	tx := testTransmission("Alpha", "Ops1", "1", time.Unix(1693512000, 0))
	tx.Transcription = "first pass"
	if err := ix.Sync(ctx, tx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	tx.Transcription = "second pass"
	if err := ix.Sync(ctx, tx); err != nil {
		t.Fatalf("Sync again: %v", err)
	}

	n, err := ix.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	if results, _ := ix.Search(ctx, "first", 10); len(results) != 0 {
		t.Errorf("stale document still matches: %+v", results)
	}
	results, err := ix.Search(ctx, "second", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestSearchTieBreak(t *testing.T) {
	ix := createTestIndex(t)
	defer ix.Close()
	ctx := context.Background()

	base := time.Unix(1693512000, 0)
	older := testTransmission("Alpha", "Ops1", "1", base)
	newer := testTransmission("Alpha", "Ops1", "2", base.Add(time.Hour))

	for _, tx := range []store.Transmission{older, newer} {
		if err := ix.Sync(ctx, tx); err != nil {
			t.Fatalf("Sync: %v", err)
		}
	}

	results, err := ix.Search(ctx, "Alpha", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Transmission.StartTime.After(results[1].Transmission.StartTime) {
		t.Errorf("ties not broken by descending start time: %v before %v",
			results[0].Transmission.StartTime, results[1].Transmission.StartTime)
	}
}

func TestSearchLimit(t *testing.T) {
	ix := createTestIndex(t)
	defer ix.Close()
	ctx := context.Background()

	base := time.Unix(1693512000, 0)
	for i := 0; i < 5; i++ {
		tx := testTransmission("Alpha", "Ops1", "1", base.Add(time.Duration(i)*time.Minute))
		if err := ix.Sync(ctx, tx); err != nil {
			t.Fatalf("Sync %d: %v", i, err)
		}
	}

	results, err := ix.Search(ctx, "Alpha", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestSearchColumnFilter(t *testing.T) {
	ix := createTestIndex(t)
	defer ix.Close()
	ctx := context.Background()

	base := time.Unix(1693512000, 0)
	tx := testTransmission("Medic", "Ops1", "1", base)
	other := testTransmission("Alpha", "Ops1", "2", base)
	other.Transcription = "medic requested at center camp"

	for _, r := range []store.Transmission{tx, other} {
		if err := ix.Sync(ctx, r); err != nil {
			t.Fatalf("Sync: %v", err)
		}
	}

	results, err := ix.Search(ctx, "transcription:medic", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Transmission.Station != "Alpha" {
		t.Errorf("column filter = %+v, want the Alpha transmission", results)
	}
}

func TestSearchBadQuery(t *testing.T) {
	ix := createTestIndex(t)
	defer ix.Close()
	ctx := context.Background()

	tx := testTransmission("Alpha", "Ops1", "1", time.Unix(1693512000, 0))
	if err := ix.Sync(ctx, tx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	for _, query := range []string{`"unbalanced`, `AND AND`} {
		_, err := ix.Search(ctx, query, 10)
		if !errors.Is(err, ErrBadQuery) {
			t.Errorf("Search(%q) err = %v, want ErrBadQuery", query, err)
		}
	}
}

func TestDelete(t *testing.T) {
	ix := createTestIndex(t)
	defer ix.Close()
	ctx := context.Background()

	tx := testTransmission("Alpha", "Ops1", "1", time.Unix(1693512000, 0))
	if err := ix.Sync(ctx, tx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := ix.Delete(ctx, tx.Key()); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	n, _ := ix.Count(ctx)
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}

	// Deleting again is harmless.
	if err := ix.Delete(ctx, tx.Key()); err != nil {
		t.Errorf("Delete again: %v", err)
	}
}

func TestRebuild(t *testing.T) {
	ix := createTestIndex(t)
	defer ix.Close()
	ctx := context.Background()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if err := s.UpsertEvent(ctx, store.Event{ID: "2023", Name: "Burning Man 2023"}); err != nil {
		t.Fatalf("UpsertEvent: %v", err)
	}
	base := time.Unix(1693512000, 0)
	for i, station := range []string{"Alpha", "Bravo"} {
		tx := testTransmission(station, "Ops1", "1", base.Add(time.Duration(i)*time.Minute))
		if _, err := s.UpsertTransmission(ctx, tx); err != nil {
			t.Fatalf("UpsertTransmission: %v", err)
		}
	}

	// A document the catalog no longer knows about.
	stale := testTransmission("Ghost", "Ops9", "9", base)
	if err := ix.Sync(ctx, stale); err != nil {
		t.Fatalf("Sync stale: %v", err)
	}

	if err := ix.Rebuild(ctx, s); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	n, err := ix.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if results, _ := ix.Search(ctx, "Ghost", 10); len(results) != 0 {
		t.Errorf("stale document survived rebuild: %+v", results)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	ix := createTestIndex(t)
	defer ix.Close()
	ctx := context.Background()

	duration := 42 * time.Second
	tx := store.Transmission{
		EventID:       "2023",
		Station:       "Alpha",
		System:        "Ops1",
		Channel:       "1",
		StartTime:     time.Unix(1693512000, 500000000),
		Duration:      &duration,
		FileName:      "a.wav",
		SHA256:        "h1",
		Transcription: "copy that",
	}
	if err := ix.Sync(ctx, tx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	results, err := ix.Search(ctx, "Alpha", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	got := results[0].Transmission
	if !got.StartTime.Equal(tx.StartTime) {
		t.Errorf("start time = %v, want %v", got.StartTime, tx.StartTime)
	}
	if got.Duration == nil || *got.Duration != duration {
		t.Errorf("duration = %v, want %v", got.Duration, duration)
	}
	if got.Transcription != "copy that" || got.SHA256 != "h1" || got.FileName != "a.wav" {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

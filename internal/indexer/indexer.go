package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/burningmantech/ranger-transmissions/internal/audio"
	"github.com/burningmantech/ranger-transmissions/internal/search"
	"github.com/burningmantech/ranger-transmissions/internal/store"
	"github.com/burningmantech/ranger-transmissions/internal/transcribe"
)

// DefaultWorkers bounds the hash/probe/transcribe pool.
const DefaultWorkers = 32

// Catalog is the store surface the pipeline writes through.
type Catalog interface {
	UpsertEvent(ctx context.Context, e store.Event) error
	UpsertTransmission(ctx context.Context, t store.Transmission) (store.UpsertResult, error)
	SetTranscription(ctx context.Context, k store.Key, text string) error
	Transmission(ctx context.Context, k store.Key) (*store.Transmission, error)
	Find(ctx context.Context, f store.Filter) ([]store.Transmission, error)
}

var _ Catalog = (*store.Store)(nil)

// DocumentSink receives transmissions whose stored state changed.
type DocumentSink interface {
	Sync(ctx context.Context, t store.Transmission) error
}

var _ DocumentSink = (*search.Index)(nil)

// Config wires an Indexer for one event's archive.
type Config struct {
	Event       store.Event
	Root        string
	Catalog     Catalog
	Index       DocumentSink           // optional
	Prober      audio.Prober           // optional
	Transcriber transcribe.Transcriber // optional
	Workers     int                    // defaults to DefaultWorkers
	NoChecksum  bool                   // skip content hashing
	Logger      *slog.Logger
}

// Indexer runs the scan, hash, probe, transcribe, upsert pipeline.
type Indexer struct {
	event       store.Event
	root        string
	catalog     Catalog
	index       DocumentSink
	prober      audio.Prober
	transcriber transcribe.Transcriber
	workers     int
	noChecksum  bool
	log         *slog.Logger
}

// New validates the configuration and returns an Indexer.
func New(cfg Config) (*Indexer, error) {
	if cfg.Event.ID == "" {
		return nil, errors.New("indexer: event ID required")
	}
	if cfg.Root == "" {
		return nil, errors.New("indexer: scan root required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("indexer: catalog required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Indexer{
		event:       cfg.Event,
		root:        cfg.Root,
		catalog:     cfg.Catalog,
		index:       cfg.Index,
		prober:      cfg.Prober,
		transcriber: cfg.Transcriber,
		workers:     cfg.Workers,
		noChecksum:  cfg.NoChecksum,
		log:         cfg.Logger,
	}, nil
}

// fileOutcome is what the worker pool hands back for one scanned file.
type fileOutcome struct {
	record      *store.Transmission // nil when the file failed outright
	errs        []*FileError
	transcribed bool
}

// Run walks the archive once and reconciles every discovered file into
// the catalog, then the search index. Per-file failures land in the
// report; store failures abort the run. Cancellation stops between
// files, and completed upserts stay durable.
func (ix *Indexer) Run(ctx context.Context) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := ix.catalog.UpsertEvent(ctx, ix.event); err != nil {
		return nil, fmt.Errorf("ensure event %q: %w", ix.event.ID, err)
	}

	items := Scan(ctx, ix.root)

	// Workers hash, probe, and transcribe in parallel. All catalog and
	// index writes stay on this goroutine.
	work := make(chan ScanItem)
	results := make(chan fileOutcome)

	var wg sync.WaitGroup
	for i := 0; i < ix.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				select {
				case results <- ix.process(ctx, item):
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		defer close(work)
		for item := range items {
			select {
			case work <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	report := &Report{}
	for out := range results {
		report.Scanned++
		for _, fe := range out.errs {
			report.add(fe)
			ix.log.Warn("file error",
				slog.String("file", fe.Path),
				slog.String("stage", string(fe.Stage)),
				slog.String("error", fe.Err.Error()))
		}
		if out.record == nil || ctx.Err() != nil {
			continue
		}

		result, err := ix.catalog.UpsertTransmission(ctx, *out.record)
		if err != nil {
			return report, fmt.Errorf("upsert %s: %w", out.record.FileName, err)
		}
		switch result {
		case store.Inserted:
			report.Inserted++
		case store.Updated:
			report.Updated++
		case store.Unchanged:
			report.Unchanged++
		}
		if out.transcribed {
			report.Transcribed++
		}
		if result != store.Unchanged {
			// The catalog merges incoming fields with stored ones, so
			// the index is projected from the stored row, not the
			// incoming record.
			stored, err := ix.catalog.Transmission(ctx, out.record.Key())
			if err != nil {
				return report, fmt.Errorf("read back %s: %w", out.record.FileName, err)
			}
			if stored != nil {
				ix.syncIndex(ctx, report, *stored)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	ix.log.Info("indexing run complete",
		slog.String("event", ix.event.ID),
		slog.Int("scanned", report.Scanned),
		slog.Int("inserted", report.Inserted),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", report.Failed()))
	return report, nil
}

// process stats, hashes, probes, and optionally transcribes one file.
func (ix *Indexer) process(ctx context.Context, item ScanItem) fileOutcome {
	if item.Err != nil {
		return fileOutcome{errs: []*FileError{item.Err}}
	}
	r := item.Result
	var out fileOutcome

	var sum string
	if !ix.noChecksum {
		var err error
		sum, err = hashFile(r.Path)
		if err != nil {
			out.errs = append(out.errs, &FileError{Path: r.Relative, Stage: StageRead, Err: err})
			return out
		}
	}

	t := store.Transmission{
		EventID:   ix.event.ID,
		Station:   r.Station,
		System:    r.System,
		Channel:   r.Channel,
		StartTime: r.StartTime,
		FileName:  r.Relative,
		SHA256:    sum,
	}

	if ix.prober != nil {
		if d, err := ix.prober.Duration(ctx, r.Path); err != nil {
			out.errs = append(out.errs, &FileError{Path: r.Relative, Stage: StageProbe, Err: err})
		} else {
			t.Duration = &d
		}
	}

	if ix.transcriber != nil && ix.needsTranscription(ctx, t) {
		if text, err := ix.transcriber.Transcribe(ctx, r.Path); err != nil {
			out.errs = append(out.errs, &FileError{Path: r.Relative, Stage: StageTranscribe, Err: err})
		} else {
			t.Transcription = text
			out.transcribed = true
		}
	}

	out.record = &t
	return out
}

// needsTranscription reports whether the costly transcription step can
// be skipped: an unchanged file that already has text needs no second
// pass.
func (ix *Indexer) needsTranscription(ctx context.Context, t store.Transmission) bool {
	stored, err := ix.catalog.Transmission(ctx, t.Key())
	if err != nil || stored == nil {
		return true
	}
	if t.SHA256 == "" {
		// Without a checksum there is no change signal to go on.
		return stored.Transcription == ""
	}
	return stored.SHA256 != t.SHA256 || stored.Transcription == ""
}

// Inspect builds the record a file would be cataloged as, parsing and
// hashing and probing it without writing anything. The transcription
// step is skipped.
func (ix *Indexer) Inspect(ctx context.Context, path string) (*store.Transmission, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(ix.root)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s is not under %s", path, ix.root)
	}

	result, err := parseRelPath(filepath.ToSlash(rel))
	if err != nil {
		return nil, err
	}
	result.Path = abs

	t := store.Transmission{
		EventID:   ix.event.ID,
		Station:   result.Station,
		System:    result.System,
		Channel:   result.Channel,
		StartTime: result.StartTime,
		FileName:  result.Relative,
	}
	if !ix.noChecksum {
		if t.SHA256, err = hashFile(abs); err != nil {
			return nil, err
		}
	}
	if ix.prober != nil {
		d, err := ix.prober.Duration(ctx, abs)
		if err != nil {
			return nil, err
		}
		t.Duration = &d
	}
	return &t, nil
}

// TranscribeMissing fills in transcriptions for already cataloged
// transmissions that have none, without re-walking the archive.
func (ix *Indexer) TranscribeMissing(ctx context.Context) (*Report, error) {
	if ix.transcriber == nil {
		return nil, errors.New("indexer: no transcriber configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stored, err := ix.catalog.Find(ctx, store.Filter{EventID: ix.event.ID})
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	work := make(chan store.Transmission)
	results := make(chan fileOutcome)

	var wg sync.WaitGroup
	for i := 0; i < ix.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				var out fileOutcome
				path := filepath.Join(ix.root, filepath.FromSlash(t.FileName))
				if text, err := ix.transcriber.Transcribe(ctx, path); err != nil {
					out.errs = []*FileError{{Path: t.FileName, Stage: StageTranscribe, Err: err}}
				} else {
					t.Transcription = text
					out.record = &t
					out.transcribed = true
				}
				select {
				case results <- out:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		defer close(work)
		for _, t := range stored {
			if t.Transcription != "" {
				continue
			}
			select {
			case work <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	report := &Report{}
	for out := range results {
		report.Scanned++
		for _, fe := range out.errs {
			report.add(fe)
			ix.log.Warn("file error",
				slog.String("file", fe.Path),
				slog.String("stage", string(fe.Stage)),
				slog.String("error", fe.Err.Error()))
		}
		if out.record == nil || ctx.Err() != nil {
			continue
		}

		if err := ix.catalog.SetTranscription(ctx, out.record.Key(), out.record.Transcription); err != nil {
			return report, fmt.Errorf("set transcription %s: %w", out.record.FileName, err)
		}
		report.Transcribed++
		ix.syncIndex(ctx, report, *out.record)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// syncIndex projects a changed record into the search index. The index
// is eventually consistent, so a failed write is reported, not fatal.
func (ix *Indexer) syncIndex(ctx context.Context, report *Report, t store.Transmission) {
	if ix.index == nil {
		return
	}
	if err := ix.index.Sync(ctx, t); err != nil {
		report.add(&FileError{Path: t.FileName, Stage: StageIndex, Err: err})
		ix.log.Warn("index sync failed",
			slog.String("file", t.FileName),
			slog.String("error", err.Error()))
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

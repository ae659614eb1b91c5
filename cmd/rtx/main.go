// Package main provides the rtx command line tool for the radio
// transmission archive: indexing, catalog queries, full text search,
// and the terminal, web, and MCP front ends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/burningmantech/ranger-transmissions/internal/app"
	"github.com/burningmantech/ranger-transmissions/internal/audio"
	"github.com/burningmantech/ranger-transmissions/internal/config"
	"github.com/burningmantech/ranger-transmissions/internal/indexer"
	"github.com/burningmantech/ranger-transmissions/internal/mcpserver"
	"github.com/burningmantech/ranger-transmissions/internal/search"
	"github.com/burningmantech/ranger-transmissions/internal/store"
	"github.com/burningmantech/ranger-transmissions/internal/transcribe"
	"github.com/burningmantech/ranger-transmissions/internal/webapi"
)

const usageText = `usage: rtx [options] COMMAND [command options]

Radio transmission archive tool.

Commands:
  index          Index event audio archives into the catalog.
  inspect        Show what files would be cataloged as, without writing.
  transcribe     Fill in missing transcriptions for cataloged transmissions.
  events         List cataloged events.
  transmissions  Query the catalog.
  search         Full text search over the catalog.
  application    Interactive terminal application.
  web            Serve the web API.
  mcp            Serve the MCP stdio interface.

Options:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("rtx", flag.ExitOnError)
	global.Usage = func() {
		fmt.Fprint(global.Output(), usageText)
		global.PrintDefaults()
	}
	configPath := global.String("config", "", "Configuration file (default $RTX_CONFIG, then ~/.rtx.yml).")
	logLevel := global.String("log-level", "", "Override the configured log level.")
	logFormat := global.String("log-format", "", "Override the configured log format.")
	if err := global.Parse(args); err != nil {
		return err
	}

	if global.NArg() == 0 {
		global.Usage()
		return errors.New("no command given")
	}
	command, commandArgs := global.Arg(0), global.Args()[1:]

	path := *configPath
	if path == "" {
		path = os.Getenv("RTX_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "index":
		return runIndex(ctx, cfg, logger, commandArgs)
	case "inspect":
		return runInspect(ctx, cfg, logger, commandArgs)
	case "transcribe":
		return runTranscribe(ctx, cfg, logger, commandArgs)
	case "events":
		return runEvents(ctx, cfg, commandArgs)
	case "transmissions":
		return runTransmissions(ctx, cfg, commandArgs)
	case "search":
		return runSearch(ctx, cfg, commandArgs)
	case "application":
		return runApplication(ctx, cfg, commandArgs)
	case "web":
		return runWeb(ctx, cfg, logger, commandArgs)
	case "mcp":
		return runMCP(cfg, logger, commandArgs)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.StorePath, err)
	}
	return st, nil
}

func openIndex(cfg *config.Config) (*search.Index, error) {
	idx, err := search.Open(cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("open search index %s: %w", cfg.IndexPath, err)
	}
	return idx, nil
}

// indexTarget is one event archive to walk.
type indexTarget struct {
	ID   string
	Name string
	Root string
}

// indexTargets resolves the -event and -root options against the
// configured events. Without -event, every event that has a source
// directory is indexed.
func indexTargets(cfg *config.Config, eventID, root string) ([]indexTarget, error) {
	if eventID != "" {
		ev, ok := cfg.Event(eventID)
		if !ok {
			return nil, fmt.Errorf("event %q is not configured", eventID)
		}
		dir := ev.SourceDir
		if root != "" {
			dir = root
		}
		if dir == "" {
			return nil, fmt.Errorf("event %q has no source directory", eventID)
		}
		return []indexTarget{{ID: ev.ID, Name: ev.Name, Root: dir}}, nil
	}
	if root != "" {
		return nil, errors.New("-root requires -event")
	}

	var targets []indexTarget
	for _, ev := range cfg.Events {
		if ev.SourceDir == "" {
			continue
		}
		targets = append(targets, indexTarget{ID: ev.ID, Name: ev.Name, Root: ev.SourceDir})
	}
	if len(targets) == 0 {
		return nil, errors.New("no configured event has a source directory")
	}
	return targets, nil
}

func runIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("rtx index", flag.ExitOnError)
	eventID := fs.String("event", "", "Index only this event.")
	root := fs.String("root", "", "Override the event's source directory (requires -event).")
	workers := fs.Int("workers", cfg.IndexWorkers, "Files processed in parallel.")
	noChecksum := fs.Bool("no-checksum", false, "Skip content hashing.")
	noDuration := fs.Bool("no-duration", false, "Skip duration probing.")
	noTranscript := fs.Bool("no-transcript", false, "Skip transcription.")
	rebuildIndex := fs.Bool("rebuild-index", false, "Rebuild the search index from the catalog first.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	targets, err := indexTargets(cfg, *eventID, *root)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	idx, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	if *rebuildIndex {
		logger.Info("rebuilding search index", slog.String("path", cfg.IndexPath))
		if err := idx.Rebuild(ctx, st); err != nil {
			return fmt.Errorf("rebuild search index: %w", err)
		}
	}

	var prober audio.Prober
	if !*noDuration {
		prober = &audio.FFProbe{}
	}
	var transcriber transcribe.Transcriber
	if !*noTranscript && cfg.Transcription.Enabled {
		transcriber = transcribe.NewWhisper(
			cfg.Transcription.APIKey,
			cfg.Transcription.Model,
			cfg.Transcription.Language,
		)
	}

	for _, target := range targets {
		ix, err := indexer.New(indexer.Config{
			Event:       store.Event{ID: target.ID, Name: target.Name},
			Root:        target.Root,
			Catalog:     st,
			Index:       idx,
			Prober:      prober,
			Transcriber: transcriber,
			Workers:     *workers,
			NoChecksum:  *noChecksum,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		report, err := ix.Run(ctx)
		if report != nil {
			fmt.Printf("%s: %s\n", target.ID, report)
		}
		if err != nil {
			return fmt.Errorf("index %s: %w", target.ID, err)
		}
	}
	return nil
}

func runInspect(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("rtx inspect", flag.ExitOnError)
	noChecksum := fs.Bool("no-checksum", false, "Skip content hashing.")
	noDuration := fs.Bool("no-duration", false, "Skip duration probing.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no files given")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var prober audio.Prober
	if !*noDuration {
		prober = &audio.FFProbe{}
	}

	for _, path := range fs.Args() {
		t, err := inspectFile(ctx, cfg, st, prober, logger, path, *noChecksum)
		if err != nil {
			return err
		}
		printInspect(os.Stdout, path, t)
	}
	return nil
}

// inspectFile maps a file path to the event whose source directory
// contains it and parses it the way the pipeline would.
func inspectFile(
	ctx context.Context,
	cfg *config.Config,
	catalog indexer.Catalog,
	prober audio.Prober,
	logger *slog.Logger,
	path string,
	noChecksum bool,
) (*store.Transmission, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	for _, ev := range cfg.Events {
		if ev.SourceDir == "" {
			continue
		}
		root, err := filepath.Abs(ev.SourceDir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}

		ix, err := indexer.New(indexer.Config{
			Event:      store.Event{ID: ev.ID, Name: ev.Name},
			Root:       root,
			Catalog:    catalog,
			Prober:     prober,
			NoChecksum: noChecksum,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return ix.Inspect(ctx, abs)
	}
	return nil, fmt.Errorf("%s is not under any configured source directory", path)
}

func runTranscribe(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("rtx transcribe", flag.ExitOnError)
	eventID := fs.String("event", "", "Transcribe only this event.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !cfg.Transcription.Enabled {
		return errors.New("transcription is not enabled in the configuration")
	}

	targets, err := indexTargets(cfg, *eventID, "")
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	idx, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	transcriber := transcribe.NewWhisper(
		cfg.Transcription.APIKey,
		cfg.Transcription.Model,
		cfg.Transcription.Language,
	)

	for _, target := range targets {
		ix, err := indexer.New(indexer.Config{
			Event:       store.Event{ID: target.ID, Name: target.Name},
			Root:        target.Root,
			Catalog:     st,
			Index:       idx,
			Transcriber: transcriber,
			Workers:     cfg.IndexWorkers,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		report, err := ix.TranscribeMissing(ctx)
		if report != nil {
			fmt.Printf("%s: %s\n", target.ID, report)
		}
		if err != nil {
			return fmt.Errorf("transcribe %s: %w", target.ID, err)
		}
	}
	return nil
}

func runEvents(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("rtx events", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.Events(ctx)
	if err != nil {
		return err
	}
	return printEvents(os.Stdout, events)
}

func runTransmissions(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("rtx transmissions", flag.ExitOnError)
	eventID := fs.String("event", "", "Filter by event ID.")
	station := fs.String("station", "", "Filter by station.")
	system := fs.String("system", "", "Filter by radio system.")
	channel := fs.String("channel", "", "Filter by channel.")
	query := fs.String("search", "", "Keep only transmissions matching a full text query.")
	startArg := fs.String("start", "", "Keep only transmissions starting at or after this time.")
	endArg := fs.String("end", "", "Keep only transmissions starting before this time.")
	format := fs.String("format", "text", "Output format: text, csv, or json.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch *format {
	case "text", "csv", "json":
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	f := store.Filter{
		EventID: *eventID,
		Station: *station,
		System:  *system,
		Channel: *channel,
	}
	if *startArg != "" {
		t, err := parseDateTime(*startArg)
		if err != nil {
			return err
		}
		f.Start = t
	}
	if *endArg != "" {
		t, err := parseDateTime(*endArg)
		if err != nil {
			return err
		}
		f.End = t
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.Find(ctx, f)
	if err != nil {
		return err
	}

	if *query != "" {
		idx, err := openIndex(cfg)
		if err != nil {
			return err
		}
		defer idx.Close()

		records, err = searchFilter(ctx, idx, *query, records)
		if err != nil {
			return err
		}
	}

	switch *format {
	case "csv":
		return printTransmissionsCSV(os.Stdout, records)
	case "json":
		return printTransmissionsJSON(os.Stdout, records)
	default:
		return printTransmissionsText(os.Stdout, records)
	}
}

// searchFilter narrows records to those matching the full text query.
// The index is queried without a result cap so the intersection keeps
// the catalog's start time order.
func searchFilter(ctx context.Context, idx *search.Index, query string, records []store.Transmission) ([]store.Transmission, error) {
	total, err := idx.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	hits, err := idx.Search(ctx, query, total)
	if err != nil {
		return nil, err
	}
	matched := make(map[string]bool, len(hits))
	for _, hit := range hits {
		matched[hit.Transmission.Key().String()] = true
	}

	kept := records[:0]
	for _, t := range records {
		if matched[t.Key().String()] {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

func runSearch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("rtx search", flag.ExitOnError)
	query := fs.String("q", "", "The search query.")
	limit := fs.Int("limit", search.DefaultLimit, "Maximum number of hits.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := *query
	if q == "" {
		q = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(q) == "" {
		return errors.New("no query given")
	}
	if *limit < 1 {
		return fmt.Errorf("limit must be positive, got %d", *limit)
	}

	idx, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	hits, err := idx.Search(ctx, q, *limit)
	if err != nil {
		return err
	}
	return printSearchHits(os.Stdout, hits)
}

func runApplication(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("rtx application", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	idx, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	program := tea.NewProgram(app.New(st, idx), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("application: %w", err)
	}
	return nil
}

func runWeb(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("rtx web", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	idx, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	handlers := webapi.NewHandlers(st, idx, logger)
	srv := &http.Server{
		Addr:         cfg.WebAddr,
		Handler:      webapi.NewRouter(handlers, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down web API")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runMCP(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("rtx mcp", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	idx, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	return mcpserver.New(st, idx, logger).ServeStdio()
}

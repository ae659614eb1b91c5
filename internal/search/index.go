// Package search maintains the full-text projection of the catalog.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/burningmantech/ranger-transmissions/internal/store"
)

// ErrBadQuery means the query string is not valid full-text syntax.
var ErrBadQuery = errors.New("malformed search query")

// DefaultLimit bounds a search that did not ask for one.
const DefaultLimit = 100

// Index mirrors transmissions into a SQLite FTS5 table kept in its own
// database file. It is an eventually consistent projection of the
// catalog, never the source of truth, and is safe to rebuild at any
// time.
type Index struct {
	db *sql.DB
}

// Result pairs a matched transmission with its engine relevance score.
// Scores are positive for matches; higher ranks better.
type Result struct {
	Transmission store.Transmission
	Score        float64
}

// Source is the catalog side of a rebuild.
type Source interface {
	Find(ctx context.Context, f store.Filter) ([]store.Transmission, error)
}

// DefaultPath returns the default index path.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "rtx-index.sqlite")
}

// Open opens the index, creating the document table if needed. The
// projection is rebuildable, so it carries no version machinery.
func Open(path string) (*Index, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping index: %w", err)
	}

	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS transmission_index USING fts5(
			station, system, channel, transcription, file_name,
			doc_key UNINDEXED, record UNINDEXED, start_time UNINDEXED,
			tokenize = 'unicode61'
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index table: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the index.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Sync upserts the search document for the transmission, keyed by its
// natural key.
func (ix *Index) Sync(ctx context.Context, t store.Transmission) error {
	record, err := json.Marshal(encodeDocument(t))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	key := t.Key().String()

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transmission_index WHERE doc_key = ?`, key); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transmission_index
			(station, system, channel, transcription, file_name, doc_key, record, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Station, t.System, t.Channel, t.Transcription, t.FileName,
		key, string(record), store.TimeValue(t.StartTime)); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return tx.Commit()
}

// Delete removes the document for the key, if present.
func (ix *Index) Delete(ctx context.Context, k store.Key) error {
	if _, err := ix.db.ExecContext(ctx,
		`DELETE FROM transmission_index WHERE doc_key = ?`, k.String()); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Search runs a full-text query and returns at most limit results, best
// match first, ties broken by most recent start time. A bare term
// matches any indexed field; fts5 column filters such as
// "transcription:medic" pass through.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT record, bm25(transmission_index) AS score
		FROM transmission_index
		WHERE transmission_index MATCH ?
		ORDER BY score ASC, start_time DESC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, queryError(query, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var record string
		var score float64
		if err := rows.Scan(&record, &score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var doc document
		if err := json.Unmarshal([]byte(record), &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		// bm25 scores are negative with better matches more negative.
		results = append(results, Result{
			Transmission: doc.transmission(),
			Score:        -score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(query, err)
	}
	return results, nil
}

// Rebuild drops every document and replays the catalog through Sync.
// Reconciliation is idempotent, so a rebuild may run at any time.
func (ix *Index) Rebuild(ctx context.Context, src Source) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM transmission_index`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	all, err := src.Find(ctx, store.Filter{})
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	for _, t := range all {
		if err := ix.Sync(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of indexed documents.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transmission_index`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// fts5 reports malformed query strings as generic SQL errors; match the
// known message shapes so callers get one user-facing error.
func queryError(query string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "unterminated string") {
		return fmt.Errorf("%w: %q", ErrBadQuery, query)
	}
	return fmt.Errorf("search: %w", err)
}

// document is the stored copy of a transmission carried inside the
// index so reads need no catalog round trip.
type document struct {
	EventID       string   `json:"event_id"`
	Station       string   `json:"station"`
	System        string   `json:"system"`
	Channel       string   `json:"channel"`
	StartTime     float64  `json:"start_time"`
	Duration      *float64 `json:"duration"`
	FileName      string   `json:"file_name"`
	SHA256        string   `json:"sha256"`
	Transcription string   `json:"transcription"`
}

func encodeDocument(t store.Transmission) document {
	doc := document{
		EventID:       t.EventID,
		Station:       t.Station,
		System:        t.System,
		Channel:       t.Channel,
		StartTime:     store.TimeValue(t.StartTime),
		FileName:      t.FileName,
		SHA256:        t.SHA256,
		Transcription: t.Transcription,
	}
	if t.Duration != nil {
		seconds := t.Duration.Seconds()
		doc.Duration = &seconds
	}
	return doc
}

func (d document) transmission() store.Transmission {
	t := store.Transmission{
		EventID:       d.EventID,
		Station:       d.Station,
		System:        d.System,
		Channel:       d.Channel,
		StartTime:     store.TimeFromUnix(d.StartTime),
		FileName:      d.FileName,
		SHA256:        d.SHA256,
		Transcription: d.Transcription,
	}
	if d.Duration != nil {
		duration := time.Duration(*d.Duration * float64(time.Second))
		t.Duration = &duration
	}
	return t
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the authoritative catalog of events and transmissions. It is
// the sole writer; the search index is a projection derived from it.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default catalog path.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "rtx.sqlite")
}

// Open opens the catalog, creating it if needed, and migrates it to the
// latest known schema version.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One pooled connection so every caller sees the same database,
	// in-memory stores included.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := applySchema(context.Background(), db, migrations); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertEvent inserts the event, or renames it if it already exists.
func (s *Store) UpsertEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO EVENT (ID, NAME) VALUES (?, ?)
		ON CONFLICT (ID) DO UPDATE SET NAME = excluded.NAME
	`, e.ID, e.Name)
	if err != nil {
		return fmt.Errorf("upsert event %q: %w", e.ID, err)
	}
	return nil
}

// Events returns all events ordered by ID.
func (s *Store) Events(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ID, NAME FROM EVENT ORDER BY ID ASC`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const selectTransmission = `
	SELECT EVENT, STATION, SYSTEM, CHANNEL, START_TIME, DURATION, FILE_NAME, SHA256, TRANSCRIPTION
	FROM TRANSMISSION`

// UpsertTransmission reconciles a freshly scanned transmission against
// whatever is stored under the same natural key.
//
// A missing record is inserted. When the stored content hash differs
// from a supplied one, file name, duration, and hash are overwritten and
// the stored transcription is preserved unless the incoming record
// carries its own. When the hash matches, nothing is written unless the
// incoming record carries a transcription that differs. The referenced
// event must already exist.
func (s *Store) UpsertTransmission(ctx context.Context, t Transmission) (UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM EVENT WHERE ID = ?`, t.EventID).Scan(&one)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, t.EventID)
	}
	if err != nil {
		return "", fmt.Errorf("check event: %w", err)
	}

	stored, err := scanTransmission(tx.QueryRowContext(ctx, selectTransmission+`
		WHERE EVENT = ? AND SYSTEM = ? AND CHANNEL = ? AND START_TIME = ?
	`, t.EventID, t.System, t.Channel, TimeValue(t.StartTime)))
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO TRANSMISSION
				(EVENT, STATION, SYSTEM, CHANNEL, START_TIME, DURATION, FILE_NAME, SHA256, TRANSCRIPTION)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.EventID, t.Station, t.System, t.Channel, TimeValue(t.StartTime),
			durationValue(t.Duration), t.FileName, nullString(t.SHA256), nullString(t.Transcription)); err != nil {
			return "", fmt.Errorf("insert transmission: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
		return Inserted, nil
	}
	if err != nil {
		return "", fmt.Errorf("query transmission: %w", err)
	}

	hashChanged := t.SHA256 != "" && t.SHA256 != stored.SHA256
	newText := t.Transcription != "" && t.Transcription != stored.Transcription

	switch {
	case hashChanged:
		text := stored.Transcription
		if t.Transcription != "" {
			text = t.Transcription
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE TRANSMISSION
			SET DURATION = ?, FILE_NAME = ?, SHA256 = ?, TRANSCRIPTION = ?
			WHERE EVENT = ? AND SYSTEM = ? AND CHANNEL = ? AND START_TIME = ?
		`, durationValue(t.Duration), t.FileName, nullString(t.SHA256), nullString(text),
			t.EventID, t.System, t.Channel, TimeValue(t.StartTime)); err != nil {
			return "", fmt.Errorf("update transmission: %w", err)
		}
	case newText:
		if _, err := tx.ExecContext(ctx, `
			UPDATE TRANSMISSION
			SET TRANSCRIPTION = ?
			WHERE EVENT = ? AND SYSTEM = ? AND CHANNEL = ? AND START_TIME = ?
		`, t.Transcription, t.EventID, t.System, t.Channel, TimeValue(t.StartTime)); err != nil {
			return "", fmt.Errorf("update transcription: %w", err)
		}
	default:
		return Unchanged, nil
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return Updated, nil
}

// SetTranscription updates only the transcription of an existing
// transmission.
func (s *Store) SetTranscription(ctx context.Context, k Key, text string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE TRANSMISSION SET TRANSCRIPTION = ?
		WHERE EVENT = ? AND SYSTEM = ? AND CHANNEL = ? AND START_TIME = ?
	`, nullString(text), k.EventID, k.System, k.Channel, TimeValue(k.StartTime))
	if err != nil {
		return fmt.Errorf("set transcription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set transcription: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return nil
}

// Transmission returns the stored transmission for the key, or nil when
// none exists.
func (s *Store) Transmission(ctx context.Context, k Key) (*Transmission, error) {
	t, err := scanTransmission(s.db.QueryRowContext(ctx, selectTransmission+`
		WHERE EVENT = ? AND SYSTEM = ? AND CHANNEL = ? AND START_TIME = ?
	`, k.EventID, k.System, k.Channel, TimeValue(k.StartTime)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query transmission: %w", err)
	}
	return &t, nil
}

// Find returns transmissions matching the filter, ordered by start time
// ascending. Every call re-queries the store.
func (s *Store) Find(ctx context.Context, f Filter) ([]Transmission, error) {
	query := selectTransmission
	var conds []string
	var args []any

	if f.EventID != "" {
		conds = append(conds, `EVENT = ?`)
		args = append(args, f.EventID)
	}
	if f.Station != "" {
		conds = append(conds, `STATION = ?`)
		args = append(args, f.Station)
	}
	if f.System != "" {
		conds = append(conds, `SYSTEM = ?`)
		args = append(args, f.System)
	}
	if f.Channel != "" {
		conds = append(conds, `CHANNEL = ?`)
		args = append(args, f.Channel)
	}
	if f.Text != "" {
		conds = append(conds,
			`(STATION LIKE ? OR SYSTEM LIKE ? OR CHANNEL LIKE ? OR FILE_NAME LIKE ? OR TRANSCRIPTION LIKE ?)`)
		pattern := "%" + f.Text + "%"
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}
	if !f.Start.IsZero() {
		conds = append(conds, `START_TIME >= ?`)
		args = append(args, TimeValue(f.Start))
	}
	if !f.End.IsZero() {
		conds = append(conds, `START_TIME < ?`)
		args = append(args, TimeValue(f.End))
	}

	if len(conds) > 0 {
		query += "\n\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\tORDER BY START_TIME ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transmissions: %w", err)
	}
	defer rows.Close()

	var found []Transmission
	for rows.Next() {
		t, err := scanTransmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transmission: %w", err)
		}
		found = append(found, t)
	}
	return found, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransmission(row rowScanner) (Transmission, error) {
	var t Transmission
	var startTime float64
	var duration sql.NullFloat64
	var sha, text sql.NullString

	if err := row.Scan(&t.EventID, &t.Station, &t.System, &t.Channel,
		&startTime, &duration, &t.FileName, &sha, &text); err != nil {
		return Transmission{}, err
	}

	t.StartTime = TimeFromUnix(startTime)
	if duration.Valid {
		d := durationFromSeconds(duration.Float64)
		t.Duration = &d
	}
	t.SHA256 = sha.String
	t.Transcription = text.String
	return t, nil
}

// TimeValue converts a time to the REAL seconds persisted in the store.
// Microsecond precision keeps key equality stable across round trips.
func TimeValue(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// TimeFromUnix converts persisted REAL seconds back to a time.
func TimeFromUnix(ts float64) time.Time {
	return time.UnixMicro(int64(math.Round(ts * 1e6)))
}

func durationValue(d *time.Duration) sql.NullFloat64 {
	if d == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: d.Seconds(), Valid: true}
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

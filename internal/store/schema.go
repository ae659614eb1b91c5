package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration brings the schema from the previous version to Version. Its
// statements run in order inside one transaction together with the
// version bump, so a failure midway leaves the prior version intact.
type Migration struct {
	Version    int
	Statements []string
}

var migrations = []Migration{
	{
		Version: 1,
		Statements: []string{
			`CREATE TABLE EVENT (
				ID   TEXT PRIMARY KEY,
				NAME TEXT NOT NULL
			)`,
			`CREATE TABLE TRANSMISSION (
				EVENT         TEXT NOT NULL REFERENCES EVENT (ID),
				STATION       TEXT NOT NULL,
				SYSTEM        TEXT NOT NULL,
				CHANNEL       TEXT NOT NULL,
				START_TIME    REAL NOT NULL,
				DURATION      REAL,
				FILE_NAME     TEXT NOT NULL,
				SHA256        TEXT,
				TRANSCRIPTION TEXT,
				PRIMARY KEY (EVENT, SYSTEM, CHANNEL, START_TIME)
			)`,
		},
	},
}

// applySchema bootstraps SCHEMA_INFO at version 0 when absent, then
// applies every pending migration strictly ascending.
func applySchema(ctx context.Context, db *sql.DB, migs []Migration) error {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS SCHEMA_INFO (VERSION INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema info: %w", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	latest := 0
	byVersion := make(map[int]Migration, len(migs))
	for _, m := range migs {
		byVersion[m.Version] = m
		if m.Version > latest {
			latest = m.Version
		}
	}

	if current > latest {
		return fmt.Errorf("%w: store is at version %d, latest known is %d",
			ErrIncompatibleSchema, current, latest)
	}

	for v := current + 1; v <= latest; v++ {
		m, ok := byVersion[v]
		if !ok {
			return fmt.Errorf("%w: no migration to version %d", ErrIncompatibleSchema, v)
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migrate to version %d: %w", v, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE SCHEMA_INFO SET VERSION = ?`, m.Version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT VERSION FROM SCHEMA_INFO`).Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO SCHEMA_INFO (VERSION) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("record version: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

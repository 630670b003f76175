// Package journal keeps a local record of flush outcomes for operator
// diagnosis: which artifact went where, how many rows, and how the load
// ended. The journal is advisory; a journaling failure never fails a
// flush.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Entry is one flush outcome.
type Entry struct {
	FlushID   string
	Table     string
	URI       string
	Rows      int
	Bytes     int64
	Outcome   string // "loaded", "failed"
	Error     string
	CreatedAt time.Time
}

// Journal is a SQLite-backed flush log.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (and if needed initializes) the journal database.
func Open(dbPath string, logger zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS flushes (
		flush_id   TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		uri        TEXT NOT NULL,
		rows       INTEGER NOT NULL,
		bytes      INTEGER NOT NULL,
		outcome    TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_flushes_created_at ON flushes(created_at);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Journal{
		db:     db,
		logger: logger.With().Str("component", "journal").Logger(),
	}, nil
}

// Record persists one flush outcome. Errors are logged, not returned:
// the flush result stands regardless of journaling.
func (j *Journal) Record(e Entry) {
	_, err := j.db.Exec(
		`INSERT INTO flushes (flush_id, table_name, uri, rows, bytes, outcome, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.FlushID, e.Table, e.URI, e.Rows, e.Bytes, e.Outcome, e.Error,
	)
	if err != nil {
		j.logger.Warn().Err(err).Str("flush_id", e.FlushID).Msg("Failed to journal flush outcome")
	}
}

// Recent returns the most recent n flush entries, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT flush_id, table_name, uri, rows, bytes, outcome, error, created_at
		 FROM flushes ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.FlushID, &e.Table, &e.URI, &e.Rows, &e.Bytes, &e.Outcome, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

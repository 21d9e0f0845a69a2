// Package journal keeps a SQLite record of blog operations that committed
// some but not all of their remote writes, so they can be replayed later.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/inkwell/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	id          TEXT PRIMARY KEY,
	op          TEXT NOT NULL,
	slug        TEXT NOT NULL,
	committed   TEXT NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	resolved_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_entries_open ON entries(resolved_at, created_at);
`

// Entry is one recorded partial failure.
type Entry struct {
	ID         string     `json:"id"`
	Op         string     `json:"op"`
	Slug       string     `json:"slug"`
	Committed  []string   `json:"committed"`
	Error      string     `json:"error"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// DB wraps a sql.DB holding the entries table.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the journal database at dsn.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// RecordPartial stores pf as an open entry.
func (db *DB) RecordPartial(ctx context.Context, pf *apperr.PartialFailure) error {
	_, err := db.insert(ctx, pf)
	return err
}

func (db *DB) insert(ctx context.Context, pf *apperr.PartialFailure) (string, error) {
	committed := pf.Committed
	if committed == nil {
		committed = []string{}
	}
	committedJSON, err := json.Marshal(committed)
	if err != nil {
		return "", fmt.Errorf("journal: encode committed: %w", err)
	}
	msg := ""
	if pf.Err != nil {
		msg = pf.Err.Error()
	}
	id := uuid.NewString()
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO entries (id, op, slug, committed, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, pf.Op, pf.Slug, string(committedJSON), msg, db.now().UTC())
	if err != nil {
		return "", fmt.Errorf("journal: insert: %w", err)
	}
	return id, nil
}

// List returns entries oldest first. Resolved entries are included only
// when includeResolved is set.
func (db *DB) List(ctx context.Context, includeResolved bool) ([]Entry, error) {
	q := `SELECT id, op, slug, committed, error, created_at, resolved_at FROM entries`
	if !includeResolved {
		q += ` WHERE resolved_at IS NULL`
	}
	q += ` ORDER BY created_at, rowid`

	rows, err := db.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Get returns the entry with id, or an error matching apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, id string) (*Entry, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, op, slug, committed, error, created_at, resolved_at
		FROM entries WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("journal: entry %s: %w", id, apperr.ErrNotFound)
	}
	return e, err
}

// Resolve marks id as handled. Resolving twice is not an error.
func (db *DB) Resolve(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE entries SET resolved_at = COALESCE(resolved_at, ?) WHERE id = ?
	`, db.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("journal: resolve: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("journal: resolve: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("journal: entry %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Replay runs fn for the entry's operation and slug and resolves the entry
// when fn succeeds. Replaying a resolved entry does nothing.
func (db *DB) Replay(ctx context.Context, id string, fn func(ctx context.Context, op, slug string) error) error {
	e, err := db.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.ResolvedAt != nil {
		return nil
	}
	if err := fn(ctx, e.Op, e.Slug); err != nil {
		return fmt.Errorf("journal: replay %s %s: %w", e.Op, e.Slug, err)
	}
	return db.Resolve(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e             Entry
		committedJSON string
		resolved      sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.Op, &e.Slug, &committedJSON, &e.Error, &e.CreatedAt, &resolved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("journal: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(committedJSON), &e.Committed); err != nil {
		return nil, fmt.Errorf("journal: decode committed: %w", err)
	}
	if resolved.Valid {
		t := resolved.Time
		e.ResolvedAt = &t
	}
	return &e, nil
}

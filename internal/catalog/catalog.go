// Package catalog stores accepted element sets in SQLite so the daemon and
// CLI can answer "latest elements for satellite N" without re-reading
// source files.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite"

	"example.com/tlegate/internal/format"
	"example.com/tlegate/internal/tle"
)

var ErrNotFound = errors.New("catalog: satellite not found")

// Entry is one stored element set.
type Entry struct {
	Satellite string    `json:"satellite"`
	Name      string    `json:"name,omitempty"`
	Epoch     time.Time `json:"epoch"`
	Line1     string    `json:"line1"`
	Line2     string    `json:"line2"`
	Digest    string    `json:"digest"`
	Source    string    `json:"source,omitempty"`
	Profile   string    `json:"profile,omitempty"`
	StoredAt  time.Time `json:"storedAt"`
}

// Record parses the stored lines back into a record.
func (e Entry) Record() (*tle.ParsedTLE, error) {
	text := e.Line1 + "\n" + e.Line2
	if e.Name != "" {
		text = e.Name + "\n" + text
	}
	opts := tle.DefaultOptions()
	opts.IncludeWarnings = false
	return tle.Parse(text, opts)
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("catalog: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS elements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    satellite TEXT NOT NULL,
    name TEXT,
    epoch_ms INTEGER NOT NULL,
    line1 TEXT NOT NULL,
    line2 TEXT NOT NULL,
    digest TEXT NOT NULL UNIQUE,
    source TEXT,
    profile TEXT,
    stored_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS elements_satellite_epoch ON elements (satellite, epoch_ms DESC);`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores recs, skipping element sets already present. It returns the
// number of rows inserted.
func (s *Store) Put(ctx context.Context, source, profile string, recs []*tle.ParsedTLE) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO elements (satellite, name, epoch_ms, line1, line2, digest, source, profile, stored_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("catalog: prepare: %w", err)
	}
	defer stmt.Close()

	stored := s.now().UTC().Unix()
	inserted := 0
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		l1, l2, err := format.Lines(rec)
		if err != nil {
			return 0, fmt.Errorf("catalog: satellite %s: %w", rec.SatelliteNumber1, err)
		}
		epoch, err := rec.Epoch()
		if err != nil {
			return 0, fmt.Errorf("catalog: satellite %s: %w", rec.SatelliteNumber1, err)
		}
		res, err := stmt.ExecContext(ctx, rec.SatelliteNumber1, rec.Name, epoch.UnixMilli(), l1, l2,
			Digest(l1, l2), source, profile, stored)
		if err != nil {
			return 0, fmt.Errorf("catalog: insert: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return inserted, nil
}

// Digest identifies an element set by its two data lines.
func Digest(line1, line2 string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(line1+"\n"+line2))
}

const selectEntry = `SELECT satellite, name, epoch_ms, line1, line2, digest, source, profile, stored_at FROM elements`

// Latest returns the element set with the newest epoch for satellite.
func (s *Store) Latest(ctx context.Context, satellite string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntry+` WHERE satellite = ? ORDER BY epoch_ms DESC, id DESC LIMIT 1`, satellite)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, satellite)
	}
	return e, err
}

// History returns up to limit element sets for satellite, newest epoch
// first. limit <= 0 returns all of them.
func (s *Store) History(ctx context.Context, satellite string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectEntry+` WHERE satellite = ? ORDER BY epoch_ms DESC, id DESC LIMIT ?`, satellite, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Satellites lists the distinct catalog numbers stored.
func (s *Store) Satellites(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT satellite FROM elements ORDER BY satellite`)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sat string
		if err := rows.Scan(&sat); err != nil {
			return nil, err
		}
		out = append(out, sat)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM elements`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                     Entry
		name, source, profile sql.NullString
		epochMs, storedAt     int64
	)
	if err := sc.Scan(&e.Satellite, &name, &epochMs, &e.Line1, &e.Line2, &e.Digest, &source, &profile, &storedAt); err != nil {
		return Entry{}, err
	}
	e.Name, e.Source, e.Profile = name.String, source.String, profile.String
	e.Epoch = time.UnixMilli(epochMs).UTC()
	e.StoredAt = time.Unix(storedAt, 0).UTC()
	return e, nil
}

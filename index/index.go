// Package index maintains the persistent image index: a SQLite-backed store
// keyed by (path, source_prefix) holding metadata and fingerprints.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStorageUnavailable marks a backing store that cannot be opened or
// created. It is surfaced to the caller, never retried internally.
var ErrStorageUnavailable = errors.New("index storage unavailable")

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS images (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL,
	source_prefix TEXT NOT NULL,
	format TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	modified_at TEXT NOT NULL,
	size INTEGER NOT NULL,
	average_hash TEXT NOT NULL,
	perceptual_hash TEXT NOT NULL,
	is_raw_format INTEGER NOT NULL,
	hash_version INTEGER NOT NULL,
	UNIQUE(path, source_prefix)
);
CREATE INDEX IF NOT EXISTS idx_path ON images(path);
CREATE INDEX IF NOT EXISTS idx_source_prefix ON images(source_prefix);
CREATE INDEX IF NOT EXISTS idx_average_hash ON images(average_hash);
CREATE INDEX IF NOT EXISTS idx_perceptual_hash ON images(perceptual_hash);`

// Store wraps the SQLite database holding image records. Reads may run
// concurrently with writes; writes serialize through a store-wide mutex so
// upserts on the same key never interleave.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates or opens the index database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: apply %q: %v", ErrStorageUnavailable, pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrStorageUnavailable, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Exists looks up a record by composite key and returns its stored
// modification timestamp when present.
func (s *Store) Exists(ctx context.Context, path, sourcePrefix string) (time.Time, bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		"SELECT modified_at FROM images WHERE path = ? AND source_prefix = ?",
		path, sourcePrefix).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("lookup %s: %w", path, err)
	}

	t, err := time.Parse(timeFormat, stored)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse stored mtime for %s: %w", path, err)
	}
	return t, true, nil
}

// Upsert inserts the record, updates it in place when force is set or the
// incoming modification time differs from the stored one, and otherwise
// leaves it untouched. The decision and write happen atomically: concurrent
// upserts for the same key serialize, last committed wins.
func (s *Store) Upsert(ctx context.Context, rec Record, force bool) (UpsertOutcome, error) {
	if rec.AverageHash == "" || rec.PerceptualHash == "" {
		return Skipped, fmt.Errorf("refusing partial record for %s: empty fingerprint", rec.Path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Skipped, fmt.Errorf("begin upsert for %s: %w", rec.Path, err)
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRowContext(ctx,
		"SELECT modified_at FROM images WHERE path = ? AND source_prefix = ?",
		rec.Path, rec.SourcePrefix).Scan(&stored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		created := rec.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO images (
				path, source_prefix, format, width, height, created_at,
				modified_at, size, average_hash, perceptual_hash,
				is_raw_format, hash_version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Path, rec.SourcePrefix, rec.Format, rec.Width, rec.Height,
			created.Format(timeFormat), rec.ModifiedAt.Format(timeFormat),
			rec.Size, rec.AverageHash, rec.PerceptualHash,
			boolToInt(rec.IsRawFormat), rec.HashVersion)
		if err != nil {
			return Skipped, fmt.Errorf("insert %s: %w", rec.Path, err)
		}
		if err := tx.Commit(); err != nil {
			return Skipped, fmt.Errorf("commit insert for %s: %w", rec.Path, err)
		}
		return Inserted, nil

	case err != nil:
		return Skipped, fmt.Errorf("upsert lookup for %s: %w", rec.Path, err)
	}

	if !force && stored == rec.ModifiedAt.Format(timeFormat) {
		return Skipped, nil
	}

	// Row replace keeps readers from ever observing a half-written record.
	_, err = tx.ExecContext(ctx, `
		UPDATE images SET
			format = ?, width = ?, height = ?, modified_at = ?, size = ?,
			average_hash = ?, perceptual_hash = ?, is_raw_format = ?,
			hash_version = ?
		WHERE path = ? AND source_prefix = ?`,
		rec.Format, rec.Width, rec.Height, rec.ModifiedAt.Format(timeFormat),
		rec.Size, rec.AverageHash, rec.PerceptualHash,
		boolToInt(rec.IsRawFormat), rec.HashVersion,
		rec.Path, rec.SourcePrefix)
	if err != nil {
		return Skipped, fmt.Errorf("update %s: %w", rec.Path, err)
	}
	if err := tx.Commit(); err != nil {
		return Skipped, fmt.Errorf("commit update for %s: %w", rec.Path, err)
	}
	return Updated, nil
}

// Candidates returns a lazy, restartable sequence of records, optionally
// filtered by source prefix. Each range over the sequence runs a fresh
// query, so the sequence may be consumed more than once.
func (s *Store) Candidates(ctx context.Context, prefixFilter string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		query := "SELECT path, source_prefix, format, width, height, created_at, " +
			"modified_at, size, average_hash, perceptual_hash, is_raw_format, hash_version " +
			"FROM images"
		var args []any
		if prefixFilter != "" {
			query += " WHERE source_prefix = ?"
			args = append(args, prefixFilter)
		}
		query += " ORDER BY path"

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(Record{}, fmt.Errorf("query candidates: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				if !yield(Record{}, err) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Record{}, fmt.Errorf("iterate candidates: %w", err))
		}
	}
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var createdAt, modifiedAt string
	var isRaw int
	err := rows.Scan(&rec.Path, &rec.SourcePrefix, &rec.Format, &rec.Width,
		&rec.Height, &createdAt, &modifiedAt, &rec.Size, &rec.AverageHash,
		&rec.PerceptualHash, &isRaw, &rec.HashVersion)
	if err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}

	if rec.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return Record{}, fmt.Errorf("parse created_at for %s: %w", rec.Path, err)
	}
	if rec.ModifiedAt, err = time.Parse(timeFormat, modifiedAt); err != nil {
		return Record{}, fmt.Errorf("parse modified_at for %s: %w", rec.Path, err)
	}
	rec.IsRawFormat = isRaw != 0
	return rec, nil
}

// Stats summarizes the indexed records under an optional prefix.
type Stats struct {
	TotalImages  int
	UniqueHashes int
}

// Stats reports record counts for the post-scan summary.
func (s *Store) Stats(ctx context.Context, prefixFilter string) (*Stats, error) {
	where := ""
	var args []any
	if prefixFilter != "" {
		where = " WHERE source_prefix = ?"
		args = append(args, prefixFilter)
	}

	var st Stats
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images"+where, args...).
		Scan(&st.TotalImages)
	if err != nil {
		return nil, fmt.Errorf("count images: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT average_hash) FROM images"+where, args...).
		Scan(&st.UniqueHashes)
	if err != nil {
		return nil, fmt.Errorf("count unique hashes: %w", err)
	}
	return &st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

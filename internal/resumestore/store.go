// Package resumestore persists resumable session records: the
// {uri, firstChunk} pair keyed by object name that lets a resumable
// upload survive process restarts. Records live in an embedded, pure-Go
// SQLite database with goose-managed migrations; a transaction per write
// keeps each {uri, firstChunk} update atomic.
package resumestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record is the persisted session state for one object.
type Record struct {
	URI        string
	FirstChunk []byte
}

// Store is a SQLite-backed ResumableSessionRecord store keyed by object
// name (bucket-qualified, so two buckets can't collide on object name).
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite database at dbPath and
// applies pending migrations. Use ":memory:" for tests. A nil logger
// defaults to slog.Default().
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening resumable session store", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("resumestore: opening database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()

		return nil, fmt.Errorf("resumestore: setting WAL mode: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()

		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("resumestore: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("resumestore: creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("resumestore: running migrations: %w", err)
	}

	return nil
}

// objectKey is bucket-qualified so records for identically named objects
// in different buckets never collide.
func objectKey(bucket, name string) string {
	return bucket + "/" + name
}

// Get returns the persisted session for (bucket, name), or ok=false if
// none is recorded.
func (s *Store) Get(ctx context.Context, bucket, name string) (record Record, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT uri, first_chunk FROM resumable_sessions WHERE object_key = ?`, objectKey(bucket, name))

	var firstChunk []byte

	if scanErr := row.Scan(&record.URI, &firstChunk); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return Record{}, false, nil
		}

		return Record{}, false, fmt.Errorf("resumestore: reading session for %q: %w", objectKey(bucket, name), scanErr)
	}

	record.FirstChunk = firstChunk

	return record, true, nil
}

// SaveURI persists a freshly started session. No firstChunk is recorded
// until the first payload bytes are observed.
func (s *Store) SaveURI(ctx context.Context, bucket, name, uri string) error {
	return s.upsert(ctx, bucket, name, uri, nil)
}

// SaveFirstChunk records the first up-to-16 bytes observed for the
// session's current URI, used to detect content divergence on resume.
func (s *Store) SaveFirstChunk(ctx context.Context, bucket, name, uri string, firstChunk []byte) error {
	return s.upsert(ctx, bucket, name, uri, firstChunk)
}

func (s *Store) upsert(ctx context.Context, bucket, name, uri string, firstChunk []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resumable_sessions (object_key, uri, first_chunk, updated_at)
		 VALUES (?, ?, ?, unixepoch())
		 ON CONFLICT(object_key) DO UPDATE SET
		   uri = excluded.uri, first_chunk = excluded.first_chunk, updated_at = excluded.updated_at`,
		objectKey(bucket, name), uri, firstChunk)
	if err != nil {
		return fmt.Errorf("resumestore: saving session for %q: %w", objectKey(bucket, name), err)
	}

	s.logger.Debug("resumable session persisted", slog.String("object", objectKey(bucket, name)))

	return nil
}

// Delete removes the persisted record, on successful completion or on
// detected content divergence.
func (s *Store) Delete(ctx context.Context, bucket, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resumable_sessions WHERE object_key = ?`, objectKey(bucket, name))
	if err != nil {
		return fmt.Errorf("resumestore: deleting session for %q: %w", objectKey(bucket, name), err)
	}

	s.logger.Debug("resumable session deleted", slog.String("object", objectKey(bucket, name)))

	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("resumestore: closing database: %w", err)
	}

	return nil
}

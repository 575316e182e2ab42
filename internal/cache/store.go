package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/five82/beacon/internal/cache/migrations"
	"github.com/five82/beacon/internal/sqlitemigrate"
)

// DefaultSchemaVersion is the payload schema the console currently writes.
const DefaultSchemaVersion = 1

// ErrClosed is returned by operations on a closed or nil store.
var ErrClosed = errors.New("cache store is closed")

// Options tune a Store.
type Options struct {
	SchemaVersion int              // zero uses DefaultSchemaVersion
	Now           func() time.Time // nil uses time.Now
}

// Store persists cache entries in SQLite. Writes are last-write-wins per key.
type Store struct {
	db            *sql.DB
	schemaVersion int
	now           func() time.Time
}

// Open opens (or creates) the cache database at path. The special path
// ":memory:" opens a private in-memory database.
func Open(path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), db, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	version := opts.SchemaVersion
	if version <= 0 {
		version = DefaultSchemaVersion
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, schemaVersion: version, now: now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion reports the version entries must carry to be readable.
func (s *Store) SchemaVersion() int {
	if s == nil {
		return 0
	}
	return s.schemaVersion
}

// Get returns the entry stored under key. Entries older than their TTL are
// still returned; entries written under another schema version are deleted
// and reported as absent.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := s.ready(ctx); err != nil {
		return Entry{}, false, err
	}
	var (
		entry   = Entry{Key: key}
		data    []byte
		stamp   int64
		ttlMS   int64
		version int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, timestamp, schema_version, ttl_ms FROM cache_entries WHERE key = ?`, key,
	).Scan(&data, &stamp, &version, &ttlMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get cache entry %q: %w", key, err)
	}
	if version != s.schemaVersion {
		if err := s.Delete(ctx, key); err != nil {
			return Entry{}, false, err
		}
		return Entry{}, false, nil
	}
	entry.Data = json.RawMessage(data)
	entry.Timestamp = fromMillis(stamp)
	entry.SchemaVersion = version
	entry.TTL = time.Duration(ttlMS) * time.Millisecond
	return entry, true, nil
}

// Set encodes data as JSON and stores it under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, data any, ttl time.Duration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cache key is required")
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, data, timestamp, schema_version, ttl_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   data = excluded.data,
		   timestamp = excluded.timestamp,
		   schema_version = excluded.schema_version,
		   ttl_ms = excluded.ttl_ms`,
		key, encoded, toMillis(s.now()), s.schemaVersion, ttl.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("set cache entry %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry %q: %w", key, err)
	}
	return nil
}

// Clear removes every entry whose key starts with prefix (all entries when
// prefix is empty) and reports how many were removed.
func (s *Store) Clear(ctx context.Context, prefix string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE ? = '' OR instr(key, ?) = 1`, prefix, prefix)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return int(n), nil
}

// Stats aggregates the readable entries.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := s.ready(ctx); err != nil {
		return Stats{}, err
	}
	now := toMillis(s.now())
	var (
		stats          Stats
		newest, oldest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        MAX(timestamp),
		        MIN(timestamp),
		        COALESCE(SUM(LENGTH(data)), 0),
		        COALESCE(SUM(CASE WHEN ttl_ms > 0 AND ? - timestamp > ttl_ms THEN 1 ELSE 0 END), 0)
		   FROM cache_entries
		  WHERE schema_version = ?`,
		now, s.schemaVersion,
	).Scan(&stats.EntryCount, &newest, &oldest, &stats.TotalBytes, &stats.StaleCount)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	if newest.Valid {
		stats.NewestEntry = fromMillis(newest.Int64)
	}
	if oldest.Valid {
		stats.OldestEntry = fromMillis(oldest.Int64)
	}
	return stats, nil
}

func (s *Store) ready(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return ctx.Err()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

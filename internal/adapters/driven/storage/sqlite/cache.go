// Package sqlite provides the persistent query cache backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
)

// FileName is the cache database name inside the state directory.
const FileName = "cache.db"

const schema = `
CREATE TABLE IF NOT EXISTS query_cache (
	key       TEXT PRIMARY KEY,
	value     BLOB NOT NULL,
	stored_at INTEGER NOT NULL
)`

// Verify interface compliance.
var _ driven.QueryCache = (*Cache)(nil)

// Cache stores serialised query results keyed by cache key.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the cache database at path.
// ":memory:" gives a private in-memory cache.
func Open(ctx context.Context, path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// One connection: the CLI is single-writer and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &Cache{db: db, now: time.Now}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the value for key if it is younger than maxAge.
// A non-positive maxAge accepts any age.
func (c *Cache) Get(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	var (
		value    []byte
		storedAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT value, stored_at FROM query_cache WHERE key = ?`, key,
	).Scan(&value, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cache entry %q: %w", key, err)
	}

	if maxAge > 0 && c.now().Sub(time.UnixMilli(storedAt)) > maxAge {
		return nil, false, nil
	}
	return value, true, nil
}

// Put upserts value under key.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO query_cache (key, value, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at`,
		key, value, c.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put cache entry %q: %w", key, err)
	}
	return nil
}

// Invalidate removes key and everything nested below it. An empty key
// clears the cache.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	var err error
	if key == "" {
		_, err = c.db.ExecContext(ctx, `DELETE FROM query_cache`)
	} else {
		prefix := key + ":"
		_, err = c.db.ExecContext(ctx,
			`DELETE FROM query_cache WHERE key = ? OR substr(key, 1, ?) = ?`,
			key, len(prefix), prefix,
		)
	}
	if err != nil {
		return fmt.Errorf("invalidate cache %q: %w", key, err)
	}
	return nil
}

// Prune drops entries older than maxAge and returns how many were removed.
func (c *Cache) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := c.now().Add(-maxAge).UnixMilli()
	res, err := c.db.ExecContext(ctx, `DELETE FROM query_cache WHERE stored_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return n, nil
}

// Package sqlite implements the market data cache on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
)

const schema = `
	CREATE TABLE IF NOT EXISTS market_cache (
		key        TEXT    NOT NULL PRIMARY KEY,
		data       BLOB    NOT NULL,
		expires_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_market_cache_expires ON market_cache (expires_at);
`

// CacheStore implements interfaces.MarketCache on SQLite.
type CacheStore struct {
	db     *sql.DB
	logger *common.Logger
	now    func() time.Time
}

// Open opens or creates the cache database at path and prepares its schema.
func Open(ctx context.Context, path string, logger *common.Logger) (*CacheStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("SQLite market cache initialized")

	return &CacheStore{db: db, logger: logger, now: time.Now}, nil
}

// Get returns the payload for key. Expired rows are deleted and reported as misses.
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data      []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT data, expires_at FROM market_cache WHERE key = ?", key,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	if s.now().UnixNano() > expiresAt {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM market_cache WHERE key = ?", key); err != nil {
			s.logger.Debug().Str("key", key).Err(err).Msg("Failed to delete expired cache entry")
		}
		return nil, false, nil
	}
	return data, true, nil
}

// Put upserts the payload for key with the given lifetime.
func (s *CacheStore) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_cache (key, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, data, now.Add(ttl).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cache entry %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *CacheStore) Close() error {
	return s.db.Close()
}

// Compile-time check
var _ interfaces.MarketCache = (*CacheStore)(nil)

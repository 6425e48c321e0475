// Package surrealdb implements the market data cache on SurrealDB.
package surrealdb

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
)

const cacheTable = "market_cache"

// maxCBORDocBytes is the maximum encoded document size for SurrealDB's CBOR wire format.
const maxCBORDocBytes = 10_000_000

// cacheRecord is the SurrealDB record shape for the market_cache table.
type cacheRecord struct {
	Key       string    `json:"key"`
	Data      string    `json:"data"` // base64-encoded
	Size      int       `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CacheStore implements interfaces.MarketCache using SurrealDB.
type CacheStore struct {
	db     *surrealdb.DB
	logger *common.Logger
	owned  bool // Close also closes db
	now    func() time.Time
}

// Connect opens a SurrealDB connection from config and returns a CacheStore
// that owns it.
func Connect(ctx context.Context, config common.SurrealConfig, logger *common.Logger) (*CacheStore, error) {
	db, err := surrealdb.New(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	// Sign in
	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	// Select namespace and database
	if err := db.Use(ctx, config.Namespace, config.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	store, err := NewCacheStore(ctx, db, logger)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	store.owned = true

	logger.Info().
		Str("address", config.Address).
		Str("namespace", config.Namespace).
		Str("database", config.Database).
		Msg("SurrealDB market cache initialized")

	return store, nil
}

// NewCacheStore wraps an open connection. The market_cache table is defined
// if it does not exist.
func NewCacheStore(ctx context.Context, db *surrealdb.DB, logger *common.Logger) (*CacheStore, error) {
	// SurrealDB v3 errors on querying non-existent tables
	sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", cacheTable)
	if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
		return nil, fmt.Errorf("failed to define table %s: %w", cacheTable, err)
	}
	return &CacheStore{db: db, logger: logger, now: time.Now}, nil
}

// Get returns the payload for key. Expired records are deleted and reported as misses.
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rid := surrealmodels.NewRecordID(cacheTable, key)
	record, err := surrealdb.Select[cacheRecord](ctx, s.db, rid)
	if err != nil {
		if isNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	if record == nil {
		return nil, false, nil
	}

	if s.now().After(record.ExpiresAt) {
		if _, err := surrealdb.Delete[cacheRecord](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
			s.logger.Debug().Str("key", key).Err(err).Msg("Failed to delete expired cache entry")
		}
		return nil, false, nil
	}

	data, err := base64.StdEncoding.DecodeString(record.Data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return data, true, nil
}

// Put upserts the payload for key with the given lifetime.
func (s *CacheStore) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	// Base64 encoding expands data by ~33%
	encodedSize := base64.StdEncoding.EncodedLen(len(data))
	if encodedSize > maxCBORDocBytes {
		return fmt.Errorf("cache entry %s too large: %d bytes encoded (limit %d)", key, encodedSize, maxCBORDocBytes)
	}

	now := s.now()
	sql := `UPSERT $rid SET key = $key, data = $data, size = $size,
		expires_at = $expires_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID(cacheTable, key),
		"key":        key,
		"data":       base64.StdEncoding.EncodeToString(data),
		"size":       len(data),
		"expires_at": now.Add(ttl),
		"updated_at": now,
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[any](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to save cache entry after retries: %w", lastErr)
}

// Close closes the connection when the store opened it.
func (s *CacheStore) Close() error {
	if s.owned {
		s.db.Close(context.Background())
	}
	return nil
}

func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}

// Compile-time check
var _ interfaces.MarketCache = (*CacheStore)(nil)

package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/storage/sqlite"
	"github.com/bobmcallan/vire-analyzer/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendNone      = "none"
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendSQLite    = "sqlite"
	BackendSurrealDB = "surrealdb"
)

// sqliteFile is the database file name inside the cache path.
const sqliteFile = "market.db"

// NewMarketCache creates the cache selected by configuration. Returns a nil
// cache for the "none" backend.
func NewMarketCache(ctx context.Context, logger *common.Logger, config *common.CacheConfig) (interfaces.MarketCache, error) {
	switch config.Backend {
	case "", BackendNone:
		return nil, nil

	case BackendMemory:
		return NewMemoryCache(0), nil

	case BackendFile:
		cache, err := NewFileCache(logger, config.Path)
		if err != nil {
			return nil, err
		}
		return cache, nil

	case BackendSQLite:
		store, err := sqlite.Open(ctx, filepath.Join(config.Path, sqliteFile), logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	case BackendSurrealDB:
		store, err := surrealdb.Connect(ctx, config.SurrealDB, logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: none, memory, file, sqlite, surrealdb)", config.Backend)
	}
}

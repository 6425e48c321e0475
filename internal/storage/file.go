package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/common"
)

// fileRecord is the on-disk envelope for one cached payload.
type fileRecord struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	Data      []byte    `json:"data"`
}

// FileCache stores payloads as JSON files under a directory. Writes are atomic
// (temp file then rename) so concurrent readers never see a partial record.
type FileCache struct {
	dir    string
	logger *common.Logger
	now    func() time.Time
}

// NewFileCache opens or creates a file cache at path.
func NewFileCache(logger *common.Logger, path string) (*FileCache, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache path %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("File cache opened")
	return &FileCache{dir: path, logger: logger, now: time.Now}, nil
}

// Get returns the payload for key. Expired and unreadable records are misses.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("Corrupt cache entry, ignoring")
		return nil, false, nil
	}
	if c.now().After(rec.ExpiresAt) {
		os.Remove(c.path(key))
		return nil, false, nil
	}
	return rec.Data, true, nil
}

// Put writes the payload for key with the given lifetime.
func (c *FileCache) Put(_ context.Context, key string, data []byte, ttl time.Duration) error {
	raw, err := json.Marshal(fileRecord{Key: key, ExpiresAt: c.now().Add(ttl), Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	tmpFile, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(raw); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path(key)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Close is a no-op for file-based storage.
func (c *FileCache) Close() error {
	return nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, sanitizeKey(key)+".json")
}

func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CacheStorage implements the CacheStorage interface for Badger.
// Entries are keyed by request fingerprint and carry their own TTL;
// expired entries are treated as misses and deleted on access.
type CacheStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *DB, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a live cache entry by fingerprint. Expired entries are
// lazily evicted and reported as misses.
func (s *CacheStorage) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := s.db.Store().Get(key, &entry)
	if err == badgerhold.ErrNotFound {
		return nil, models.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if entry.Expired(time.Now()) {
		if err := s.db.Store().Delete(key, &models.CacheEntry{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to evict expired cache entry")
		}
		return nil, models.ErrCacheMiss
	}

	return &entry, nil
}

// Put stores a response under its fingerprint. Upsert keeps the write
// atomic per key.
func (s *CacheStorage) Put(ctx context.Context, key, provider string, value []byte, ttl time.Duration) error {
	entry := models.CacheEntry{
		Key:      key,
		Provider: provider,
		Value:    value,
		StoredAt: time.Now(),
		TTL:      ttl,
	}

	if err := s.db.Store().Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// Delete removes a cache entry. Missing keys are not an error.
func (s *CacheStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(key, &models.CacheEntry{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Ensure CacheStorage implements the interface
var _ interfaces.CacheStorage = (*CacheStorage)(nil)

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/profundo/internal/models"
)

// CacheStorage is the persistent content store keyed by request
// fingerprint. Entries survive process restarts; expired entries are
// treated as misses and lazily evicted.
type CacheStorage interface {
	// Get returns the live entry for the key or models.ErrCacheMiss.
	Get(ctx context.Context, key string) (*models.CacheEntry, error)

	// Put stores the value under key with the given TTL. Writes are
	// atomic per key.
	Put(ctx context.Context, key, provider string, value []byte, ttl time.Duration) error

	// Delete removes an entry. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// ChunkStorage persists embedded chunks for the vector index.
type ChunkStorage interface {
	SaveChunks(ctx context.Context, chunks []models.Chunk) error
	ChunksBySession(ctx context.Context, sessionID string) ([]models.Chunk, error)
	DeleteByDocument(ctx context.Context, sessionID, docURL string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// SessionStorage persists research sessions so runs can be inspected or
// resumed after a restart.
type SessionStorage interface {
	SaveSession(ctx context.Context, session *models.ResearchSession) error
	GetSession(ctx context.Context, id string) (*models.ResearchSession, error)
}

package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ChunkStorage persists embedded chunks for the vector index.
// Chunks are indexed by SessionID so retrieval never crosses sessions.
type ChunkStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewChunkStorage creates a new ChunkStorage instance
func NewChunkStorage(db *DB, logger arbor.ILogger) interfaces.ChunkStorage {
	return &ChunkStorage{
		db:     db,
		logger: logger,
	}
}

// SaveChunks persists a batch of chunks.
func (s *ChunkStorage) SaveChunks(ctx context.Context, chunks []models.Chunk) error {
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("chunk without ID for document %s", chunk.DocURL)
		}
		if err := s.db.Store().Upsert(chunk.ID, &chunk); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", chunk.ID, err)
		}
	}

	s.logger.Debug().Int("count", len(chunks)).Msg("Chunks saved")
	return nil
}

// ChunksBySession returns all chunks of one session in insertion order.
func (s *ChunkStorage) ChunksBySession(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	var chunks []models.Chunk
	err := s.db.Store().Find(&chunks, badgerhold.Where("SessionID").Eq(sessionID).Index("SessionID").SortBy("CreatedAt", "Seq"))
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks for session %s: %w", sessionID, err)
	}
	return chunks, nil
}

// DeleteByDocument removes all chunks belonging to one document so a
// discarded DocumentRef never leaves orphaned chunks behind.
func (s *ChunkStorage) DeleteByDocument(ctx context.Context, sessionID, docURL string) error {
	err := s.db.Store().DeleteMatching(&models.Chunk{},
		badgerhold.Where("SessionID").Eq(sessionID).Index("SessionID").And("DocURL").Eq(docURL))
	if err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", docURL, err)
	}
	return nil
}

// DeleteSession removes every chunk of a session.
func (s *ChunkStorage) DeleteSession(ctx context.Context, sessionID string) error {
	err := s.db.Store().DeleteMatching(&models.Chunk{},
		badgerhold.Where("SessionID").Eq(sessionID).Index("SessionID"))
	if err != nil {
		return fmt.Errorf("failed to delete chunks for session %s: %w", sessionID, err)
	}
	return nil
}

var _ interfaces.ChunkStorage = (*ChunkStorage)(nil)

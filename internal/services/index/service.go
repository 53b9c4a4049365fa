package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
)

// Service is a session-scoped vector index. Chunk vectors persist in
// chunk storage and queries rank them by cosine similarity in process;
// session corpora are small enough that a brute-force scan beats the
// cost of an external vector store.
type Service struct {
	logger   arbor.ILogger
	storage  interfaces.ChunkStorage
	embedder interfaces.LLMService
}

var _ interfaces.VectorIndex = (*Service)(nil)

// NewService creates the vector index over the given chunk storage. The
// embedder turns query text into vectors at query time.
func NewService(storage interfaces.ChunkStorage, embedder interfaces.LLMService, logger arbor.ILogger) *Service {
	return &Service{
		logger:   logger,
		storage:  storage,
		embedder: embedder,
	}
}

// Add persists embedded chunks. Chunks without a vector are rejected:
// an unembedded chunk would silently never match any query.
func (s *Service) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunks[i].ID)
		}
	}

	if err := s.storage.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}

	s.logger.Debug().
		Str("session_id", chunks[0].SessionID).
		Int("chunk_count", len(chunks)).
		Msg("Indexed chunks")

	return nil
}

// Query embeds the query text and returns the k most similar chunks of
// the session, most similar first. Fewer than k chunks in the session
// returns them all; ties keep insertion order.
func (s *Service) Query(ctx context.Context, sessionID, queryText string, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	chunks, err := s.storage.ChunksBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	queryVector, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored := make([]models.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		score, err := cosineSimilarity(queryVector, chunk.Embedding)
		if err != nil {
			s.logger.Warn().Err(err).Str("chunk_id", chunk.ID).Msg("Skipping chunk with incompatible embedding")
			continue
		}
		scored = append(scored, models.ScoredChunk{Chunk: chunk, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}

	s.logger.Debug().
		Str("session_id", sessionID).
		Int("corpus_size", len(chunks)).
		Int("returned", len(scored)).
		Msg("Vector query completed")

	return scored, nil
}

// RemoveDocument drops all chunks of one document from the session.
func (s *Service) RemoveDocument(ctx context.Context, sessionID, docURL string) error {
	if err := s.storage.DeleteByDocument(ctx, sessionID, docURL); err != nil {
		return fmt.Errorf("failed to remove document chunks: %w", err)
	}
	return nil
}

func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty embedding")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

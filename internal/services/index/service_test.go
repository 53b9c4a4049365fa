package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/models"
)

type memoryChunkStorage struct {
	mu     sync.Mutex
	chunks []models.Chunk
}

func (m *memoryChunkStorage) SaveChunks(ctx context.Context, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memoryChunkStorage) ChunksBySession(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Chunk
	for _, c := range m.chunks {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memoryChunkStorage) DeleteByDocument(ctx context.Context, sessionID, docURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if !(c.SessionID == sessionID && c.DocURL == docURL) {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

func (m *memoryChunkStorage) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.SessionID != sessionID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

// stubEmbedder returns fixed vectors per text so similarity math is
// deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Complete(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (s *stubEmbedder) CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no stub vector for %q", text)
}

func (s *stubEmbedder) EmbedDimension() int { return 3 }
func (s *stubEmbedder) Close() error        { return nil }

func chunkWithVector(id, sessionID string, seq int, v []float32) models.Chunk {
	return models.Chunk{
		ID:        id,
		SessionID: sessionID,
		DocURL:    "https://example.com/doc",
		Seq:       seq,
		Text:      "chunk " + id,
		Embedding: v,
	}
}

func TestAddRejectsUnembeddedChunks(t *testing.T) {
	storage := &memoryChunkStorage{}
	service := NewService(storage, &stubEmbedder{}, arbor.NewLogger())

	err := service.Add(context.Background(), []models.Chunk{
		chunkWithVector("c1", "s1", 0, nil),
	})
	require.Error(t, err)
	assert.Empty(t, storage.chunks)
}

func TestQueryRanksBySimilarity(t *testing.T) {
	storage := &memoryChunkStorage{}
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"about caffeine": {1, 0, 0},
	}}
	service := NewService(storage, embedder, arbor.NewLogger())

	require.NoError(t, service.Add(context.Background(), []models.Chunk{
		chunkWithVector("far", "s1", 0, []float32{0, 1, 0}),
		chunkWithVector("close", "s1", 1, []float32{0.9, 0.1, 0}),
		chunkWithVector("exact", "s1", 2, []float32{1, 0, 0}),
	}))

	results, err := service.Query(context.Background(), "s1", "about caffeine", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Chunk.ID)
	assert.Equal(t, "close", results[1].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestQueryIsSessionScoped(t *testing.T) {
	storage := &memoryChunkStorage{}
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	service := NewService(storage, embedder, arbor.NewLogger())

	require.NoError(t, service.Add(context.Background(), []models.Chunk{
		chunkWithVector("mine", "s1", 0, []float32{1, 0, 0}),
		chunkWithVector("other", "s2", 0, []float32{1, 0, 0}),
	}))

	results, err := service.Query(context.Background(), "s1", "q", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mine", results[0].Chunk.ID)
}

func TestQueryReturnsAllWhenCorpusSmallerThanK(t *testing.T) {
	storage := &memoryChunkStorage{}
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	service := NewService(storage, embedder, arbor.NewLogger())

	require.NoError(t, service.Add(context.Background(), []models.Chunk{
		chunkWithVector("only", "s1", 0, []float32{0.5, 0.5, 0}),
	}))

	results, err := service.Query(context.Background(), "s1", "q", 8)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestQueryEmptySession(t *testing.T) {
	service := NewService(&memoryChunkStorage{}, &stubEmbedder{}, arbor.NewLogger())

	results, err := service.Query(context.Background(), "empty", "anything", 8)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	storage := &memoryChunkStorage{}
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	service := NewService(storage, embedder, arbor.NewLogger())

	require.NoError(t, service.Add(context.Background(), []models.Chunk{
		chunkWithVector("first", "s1", 0, []float32{1, 0, 0}),
		chunkWithVector("second", "s1", 1, []float32{1, 0, 0}),
		chunkWithVector("third", "s1", 2, []float32{1, 0, 0}),
	}))

	results, err := service.Query(context.Background(), "s1", "q", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Chunk.ID)
	assert.Equal(t, "second", results[1].Chunk.ID)
}

func TestRemoveDocument(t *testing.T) {
	storage := &memoryChunkStorage{}
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	service := NewService(storage, embedder, arbor.NewLogger())

	keep := chunkWithVector("keep", "s1", 0, []float32{1, 0, 0})
	keep.DocURL = "https://example.com/keep"
	drop := chunkWithVector("drop", "s1", 1, []float32{1, 0, 0})

	require.NoError(t, service.Add(context.Background(), []models.Chunk{keep, drop}))
	require.NoError(t, service.RemoveDocument(context.Background(), "s1", "https://example.com/doc"))

	results, err := service.Query(context.Background(), "s1", "q", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].Chunk.ID)
}

func TestCosineSimilarity(t *testing.T) {
	identical, err := cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, identical, 1e-9)

	orthogonal, err := cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, orthogonal, 1e-9)

	_, err = cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.Error(t, err)
}

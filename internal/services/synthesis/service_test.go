package synthesis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/models"
)

type stubIndex struct {
	chunks []models.ScoredChunk
	err    error
}

func (s *stubIndex) Add(ctx context.Context, chunks []models.Chunk) error { return nil }

func (s *stubIndex) Query(ctx context.Context, sessionID, queryText string, k int) ([]models.ScoredChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.chunks) > k {
		return s.chunks[:k], nil
	}
	return s.chunks, nil
}

func (s *stubIndex) RemoveDocument(ctx context.Context, sessionID, docURL string) error { return nil }

type stubLLM struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	return s.response, s.err
}

func (s *stubLLM) CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}) (string, error) {
	return s.Complete(ctx, prompt)
}

func (s *stubLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubLLM) EmbedDimension() int { return 0 }
func (s *stubLLM) Close() error        { return nil }

func scoredChunk(docURL, title, text string, score float64) models.ScoredChunk {
	return models.ScoredChunk{
		Chunk: models.Chunk{DocURL: docURL, DocTitle: title, Text: text},
		Score: score,
	}
}

func subQuery(text string) *models.SubQuery {
	return &models.SubQuery{Text: text, Status: models.SubQueryStatusIngesting}
}

func TestSynthesizeProducesCitedAnswer(t *testing.T) {
	index := &stubIndex{chunks: []models.ScoredChunk{
		scoredChunk("https://a.example.com/", "Source A", "caffeine blocks adenosine", 0.95),
		scoredChunk("https://b.example.com/", "Source B", "half-life is about five hours", 0.9),
	}}
	llm := &stubLLM{response: "Caffeine blocks adenosine receptors [S1]. Its half-life is roughly five hours [S2]."}
	service := NewService(index, llm, 8, arbor.NewLogger())

	answer, err := service.Synthesize(context.Background(), "s1", subQuery("how does caffeine work"))
	require.NoError(t, err)

	assert.False(t, answer.Ungrounded)
	assert.Contains(t, answer.Text, "[S1]")
	assert.Equal(t, []string{"https://a.example.com/", "https://b.example.com/"}, answer.Citations)
}

func TestSynthesizePromptContainsLabeledSources(t *testing.T) {
	index := &stubIndex{chunks: []models.ScoredChunk{
		scoredChunk("https://a.example.com/", "Source A", "evidence text one", 0.9),
		scoredChunk("https://a.example.com/", "Source A", "evidence text two", 0.8),
		scoredChunk("https://b.example.com/", "", "other evidence", 0.7),
	}}
	llm := &stubLLM{response: "answer [S1]"}
	service := NewService(index, llm, 8, arbor.NewLogger())

	_, err := service.Synthesize(context.Background(), "s1", subQuery("question"))
	require.NoError(t, err)

	// Same document keeps one label across its chunks.
	assert.Contains(t, llm.lastPrompt, "[S1] https://a.example.com/")
	assert.Contains(t, llm.lastPrompt, "[S2] https://b.example.com/")
	assert.NotContains(t, llm.lastPrompt, "[S3]")
	assert.Contains(t, llm.lastPrompt, "evidence text one")
	assert.Contains(t, llm.lastPrompt, "Question: question")
}

func TestSynthesizeCitationDeduplication(t *testing.T) {
	index := &stubIndex{chunks: []models.ScoredChunk{
		scoredChunk("https://a.example.com/", "", "text", 0.9),
		scoredChunk("https://b.example.com/", "", "text", 0.8),
	}}
	llm := &stubLLM{response: "Claim one [S2]. Claim two [S1]. Claim three [S2]."}
	service := NewService(index, llm, 8, arbor.NewLogger())

	answer, err := service.Synthesize(context.Background(), "s1", subQuery("q"))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://b.example.com/", "https://a.example.com/"}, answer.Citations,
		"citations keep first-use order and deduplicate")
}

func TestSynthesizeIgnoresDanglingCitations(t *testing.T) {
	index := &stubIndex{chunks: []models.ScoredChunk{
		scoredChunk("https://a.example.com/", "", "text", 0.9),
	}}
	llm := &stubLLM{response: "Claim [S1] and a hallucinated one [S7]."}
	service := NewService(index, llm, 8, arbor.NewLogger())

	answer, err := service.Synthesize(context.Background(), "s1", subQuery("q"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com/"}, answer.Citations)
}

func TestSynthesizeNoEvidenceIsUngrounded(t *testing.T) {
	llm := &stubLLM{response: "I could not find retrieved sources for this question."}
	service := NewService(&stubIndex{}, llm, 8, arbor.NewLogger())

	answer, err := service.Synthesize(context.Background(), "s1", subQuery("unanswerable"))
	require.NoError(t, err)
	assert.True(t, answer.Ungrounded)
	assert.Empty(t, answer.Citations)
	assert.Contains(t, llm.lastPrompt, "No sources could be gathered")
	assert.Contains(t, llm.lastPrompt, "Question: unanswerable")
}

func TestSynthesizeIndexFailure(t *testing.T) {
	index := &stubIndex{err: errors.New("storage corrupt")}
	service := NewService(index, &stubLLM{}, 8, arbor.NewLogger())

	_, err := service.Synthesize(context.Background(), "s1", subQuery("q"))
	require.Error(t, err)

	var synthErr *models.SynthesisError
	assert.True(t, errors.As(err, &synthErr))
}

func TestSynthesizeLLMFailure(t *testing.T) {
	index := &stubIndex{chunks: []models.ScoredChunk{scoredChunk("https://a.example.com/", "", "text", 0.9)}}
	llm := &stubLLM{err: errors.New("model down")}
	service := NewService(index, llm, 8, arbor.NewLogger())

	_, err := service.Synthesize(context.Background(), "s1", subQuery("q"))
	require.Error(t, err)

	var synthErr *models.SynthesisError
	assert.True(t, errors.As(err, &synthErr))
}

func TestSynthesizeStatusAdvances(t *testing.T) {
	index := &stubIndex{chunks: []models.ScoredChunk{scoredChunk("https://a.example.com/", "", "text", 0.9)}}
	llm := &stubLLM{response: "answer [S1]"}
	service := NewService(index, llm, 8, arbor.NewLogger())

	sq := subQuery("q")
	_, err := service.Synthesize(context.Background(), "s1", sq)
	require.NoError(t, err)
	assert.Equal(t, models.SubQueryStatusSynthesizing, sq.Status)
}

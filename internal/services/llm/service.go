package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/interfaces"
)

// NewLLMService builds the configured LLM service. Gemini is always
// initialized because it carries embeddings; when Claude is the default
// provider, completions route to Claude and embeddings stay on Gemini.
func NewLLMService(config *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	gemini, err := NewGeminiService(&config.Gemini, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini service: %w", err)
	}

	switch config.LLM.DefaultProvider {
	case common.LLMProviderGemini:
		return gemini, nil
	case common.LLMProviderClaude:
		claude, err := NewClaudeService(&config.Claude, logger)
		if err != nil {
			gemini.Close()
			return nil, fmt.Errorf("failed to initialize Claude service: %w", err)
		}
		return &claudeWithGeminiEmbeddings{completions: claude, embeddings: gemini}, nil
	default:
		gemini.Close()
		return nil, fmt.Errorf("unknown LLM provider '%s'", config.LLM.DefaultProvider)
	}
}

// claudeWithGeminiEmbeddings pairs Claude completions with Gemini
// embeddings behind one LLMService.
type claudeWithGeminiEmbeddings struct {
	completions *ClaudeService
	embeddings  *GeminiService
}

var _ interfaces.LLMService = (*claudeWithGeminiEmbeddings)(nil)

func (s *claudeWithGeminiEmbeddings) Complete(ctx context.Context, prompt string) (string, error) {
	return s.completions.Complete(ctx, prompt)
}

func (s *claudeWithGeminiEmbeddings) CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}) (string, error) {
	return s.completions.CompleteStructured(ctx, prompt, schema)
}

func (s *claudeWithGeminiEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embeddings.Embed(ctx, text)
}

func (s *claudeWithGeminiEmbeddings) EmbedDimension() int {
	return s.embeddings.EmbedDimension()
}

func (s *claudeWithGeminiEmbeddings) Close() error {
	ferr := s.completions.Close()
	if err := s.embeddings.Close(); err != nil {
		return err
	}
	return ferr
}

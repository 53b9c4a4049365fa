package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
)

// GeminiService implements LLMService on the Gemini API. It backs both
// completions and embeddings.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

var _ interfaces.LLMService = (*GeminiService)(nil)

// NewGeminiService creates a Gemini LLM service instance.
func NewGeminiService(config *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or gemini.api_key in config)")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:  config,
		logger:  logger,
		client:  client,
		timeout: common.Duration(config.Timeout, 5*time.Minute),
	}

	logger.Info().
		Str("model", config.Model).
		Str("embed_model", config.EmbedModel).
		Int("embed_dimension", config.EmbedDimension).
		Msg("Gemini LLM service initialized")

	return service, nil
}

// Complete generates a plain-text completion for the prompt.
func (s *GeminiService) Complete(ctx context.Context, prompt string) (string, error) {
	return s.generate(ctx, prompt, nil)
}

// CompleteStructured generates a completion constrained to JSON matching
// the given schema. Gemini enforces the schema server-side.
func (s *GeminiService) CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}) (string, error) {
	genaiSchema, err := convertToGenaiSchema(schema)
	if err != nil {
		return "", fmt.Errorf("failed to convert output schema: %w", err)
	}
	return s.generate(ctx, prompt, genaiSchema)
}

func (s *GeminiService) generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.config.Temperature),
	}
	if schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schema
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	startTime := time.Now()
	resp, err := s.client.Models.GenerateContent(timeoutCtx, s.config.Model, contents, config)
	if err != nil {
		return "", wrapUpstreamError("complete", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}

	s.logger.Debug().
		Str("model", s.config.Model).
		Int("prompt_length", len(prompt)).
		Int("response_length", len(responseText)).
		Dur("duration", time.Since(startTime)).
		Msg("Completion generated")

	return responseText, nil
}

// Embed generates an embedding vector with the configured dimensionality.
func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outputDim := int32(s.config.EmbedDimension)
	result, err := s.client.Models.EmbedContent(timeoutCtx, s.config.EmbedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &outputDim})
	if err != nil {
		return nil, wrapUpstreamError("embed", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}
	if len(embedding) != s.config.EmbedDimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.config.EmbedDimension, len(embedding))
	}

	return embedding, nil
}

// EmbedDimension returns the configured embedding dimensionality.
func (s *GeminiService) EmbedDimension() int {
	return s.config.EmbedDimension
}

// Close releases the client reference. genai.Client needs no explicit
// cleanup.
func (s *GeminiService) Close() error {
	s.logger.Debug().Msg("Closing Gemini LLM service")
	s.client = nil
	return nil
}

// wrapUpstreamError classifies provider errors so the gate can decide
// what to retry. Quota responses surface as rate limit errors,
// everything else as transport errors.
func wrapUpstreamError(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "rate limit") ||
		strings.Contains(strings.ToLower(msg), "resource_exhausted") {
		return &models.RateLimitError{Provider: op, Err: err}
	}
	return &models.TransportError{Op: op, Err: err}
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/common"
)

// ClaudeService provides completions on the Anthropic API. Claude has no
// embedding endpoint, so it is always paired with a Gemini embedder via
// the provider factory.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    *anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// NewClaudeService creates a Claude completion service.
func NewClaudeService(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key in config)")
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	service := &ClaudeService{
		config:    config,
		logger:    logger,
		client:    &client,
		timeout:   common.Duration(config.Timeout, 5*time.Minute),
		maxTokens: maxTokens,
	}

	logger.Info().
		Str("model", config.Model).
		Int("max_tokens", maxTokens).
		Msg("Claude LLM service initialized")

	return service, nil
}

// Complete generates a plain-text completion for the prompt.
func (s *ClaudeService) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	return s.generate(ctx, prompt)
}

// CompleteStructured asks Claude for JSON matching the schema. The API
// has no server-side schema enforcement, so the schema is embedded in
// the prompt and the JSON block is extracted from the reply.
func (s *ClaudeService) CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal output schema: %w", err)
	}

	structured := fmt.Sprintf("%s\n\nRespond with JSON only, no prose, matching this JSON schema:\n%s", prompt, schemaJSON)
	response, err := s.generate(ctx, structured)
	if err != nil {
		return "", err
	}

	block, err := ExtractJSONBlock(response)
	if err != nil {
		return "", err
	}
	return block, nil
}

func (s *ClaudeService) generate(ctx context.Context, prompt string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}

	startTime := time.Now()
	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", wrapUpstreamError("complete", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	s.logger.Debug().
		Str("model", s.config.Model).
		Int("prompt_length", len(prompt)).
		Int("response_length", response.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Completion generated")

	return response.String(), nil
}

// Close clears the client reference.
func (s *ClaudeService) Close() error {
	s.logger.Debug().Msg("Closing Claude LLM service")
	s.client = nil
	return nil
}

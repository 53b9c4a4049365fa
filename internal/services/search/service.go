package search

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

// Service implements web search using Gemini with GoogleSearch
// grounding. The model answers the query from live search results and
// the grounding metadata carries the source URLs.
type Service struct {
	logger     arbor.ILogger
	client     *genai.Client
	model      string
	maxResults int
}

var _ interfaces.SearchProvider = (*Service)(nil)

// NewService creates a grounded search provider.
func NewService(config *common.Config, logger arbor.ILogger) (*Service, error) {
	if config.Gemini.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for web search")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client for search: %w", err)
	}

	model := config.Search.Model
	if model == "" {
		model = config.Gemini.Model
	}

	logger.Info().
		Str("model", model).
		Int("max_results", config.Search.MaxResults).
		Msg("Web search service initialized")

	return &Service{
		logger:     logger,
		client:     client,
		model:      model,
		maxResults: config.Search.MaxResults,
	}, nil
}

// Search runs one grounded query and returns the distinct source URLs
// the model consulted, capped at maxResults.
func (s *Service) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	searchTool := &genai.Tool{GoogleSearch: &genai.GoogleSearch{}}
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{searchTool},
	}

	currentDate := time.Now().Format("January 2, 2006")
	prompt := fmt.Sprintf(`You are a research assistant. Today's date is %s.
Search the web to answer the following query comprehensively.
Provide detailed information with specific facts, data, and sources.

Query: %s`, currentDate, query)

	s.logger.Debug().Str("query", query).Int("max_results", maxResults).Msg("Executing grounded web search")

	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
	if err != nil {
		return nil, classifySearchError(err)
	}

	results := extractSources(resp, maxResults)
	s.logger.Info().
		Str("query", query).
		Int("source_count", len(results)).
		Msg("Web search completed")

	return results, nil
}

// extractSources pulls distinct web sources out of the grounding
// metadata, preserving first-seen order. The response text is attached
// as the snippet of the first source since grounding chunks carry no
// per-source excerpts.
func extractSources(resp *genai.GenerateContentResponse, maxResults int) []models.SearchResult {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}

	candidate := resp.Candidates[0]
	var summary string
	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		summary = text.String()
	}

	results := make([]models.SearchResult, 0, maxResults)
	seen := make(map[string]bool)

	if candidate.GroundingMetadata != nil {
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true

			result := models.SearchResult{
				URL:   chunk.Web.URI,
				Title: chunk.Web.Title,
			}
			if len(results) == 0 {
				result.Snippet = truncate(summary, 500)
			}
			results = append(results, result)

			if len(results) >= maxResults {
				break
			}
		}
	}

	return results
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func classifySearchError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted") {
		return &models.RateLimitError{Provider: "search", Err: err}
	}
	return &models.TransportError{Op: "search", Err: err}
}

// Close releases the client reference.
func (s *Service) Close() error {
	s.client = nil
	return nil
}

package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
	"github.com/ternarybob/profundo/internal/services/llm"
)

// Service decomposes a research topic into focused sub-queries. The
// plan is all or nothing: if the model output cannot be parsed into at
// least one sub-query the whole session fails rather than researching a
// partial plan.
type Service struct {
	logger        arbor.ILogger
	llmService    interfaces.LLMService
	maxSubQueries int
}

// NewService creates the planner.
func NewService(llmService interfaces.LLMService, maxSubQueries int, logger arbor.ILogger) *Service {
	if maxSubQueries <= 0 {
		maxSubQueries = 5
	}
	return &Service{
		logger:        logger,
		llmService:    llmService,
		maxSubQueries: maxSubQueries,
	}
}

var planSchema = map[string]interface{}{
	"type":        "array",
	"description": "Focused research sub-queries covering distinct aspects of the topic",
	"items": map[string]interface{}{
		"type": "string",
	},
}

// Plan produces between one and maxSubQueries sub-queries for the
// topic. Failures return a PlanningError; callers treat that as
// session-fatal.
func (s *Service) Plan(ctx context.Context, topic string) ([]*models.SubQuery, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, &models.PlanningError{Topic: topic, Err: fmt.Errorf("topic cannot be empty")}
	}

	prompt := fmt.Sprintf(`You are a research planner. Break the following research topic into at most %d focused sub-queries.
Each sub-query must cover a distinct aspect of the topic and be answerable through web research.
Return a JSON array of sub-query strings, nothing else.

Topic: %s`, s.maxSubQueries, topic)

	queries, err := s.planQueries(ctx, topic, prompt)
	if err != nil {
		return nil, &models.PlanningError{Topic: topic, Err: err}
	}

	if len(queries) > s.maxSubQueries {
		queries = queries[:s.maxSubQueries]
	}

	subQueries := make([]*models.SubQuery, 0, len(queries))
	for i, text := range queries {
		subQueries = append(subQueries, &models.SubQuery{
			Index:  i,
			Text:   text,
			Status: models.SubQueryStatusPending,
		})
	}

	s.logger.Info().
		Str("topic", topic).
		Int("sub_query_count", len(subQueries)).
		Msg("Research plan created")

	return subQueries, nil
}

// planQueries asks the model for the plan and parses it. Unparsable
// output gets one reformulated attempt with a stricter prompt before
// the plan fails.
func (s *Service) planQueries(ctx context.Context, topic, prompt string) ([]string, error) {
	response, err := s.llmService.CompleteStructured(ctx, prompt, planSchema)
	if err != nil {
		return nil, err
	}

	queries, err := parsePlan(response)
	if err == nil {
		return queries, nil
	}

	var parseErr *models.ParsingError
	if !errors.As(err, &parseErr) {
		return nil, err
	}

	s.logger.Warn().
		Str("topic", topic).
		Err(err).
		Msg("Plan output unparsable, reformulating")

	strict := fmt.Sprintf(`Return ONLY a JSON array of sub-query strings for the research topic below. No prose, no markdown fences, no keys.

Example: ["first sub-query", "second sub-query"]

Topic: %s`, topic)

	response, err = s.llmService.CompleteStructured(ctx, strict, planSchema)
	if err != nil {
		return nil, err
	}
	return parsePlan(response)
}

// parsePlan decodes the model output into a non-empty list of distinct,
// non-blank query strings.
func parsePlan(response string) ([]string, error) {
	block, err := llm.ExtractJSONBlock(response)
	if err != nil {
		return nil, err
	}

	var raw []string
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, &models.ParsingError{Raw: response, Err: fmt.Errorf("plan is not a JSON array of strings: %w", err)}
	}

	seen := make(map[string]bool)
	queries := make([]string, 0, len(raw))
	for _, q := range raw {
		q = strings.TrimSpace(q)
		if q == "" || seen[strings.ToLower(q)] {
			continue
		}
		seen[strings.ToLower(q)] = true
		queries = append(queries, q)
	}

	if len(queries) == 0 {
		return nil, &models.ParsingError{Raw: response, Err: fmt.Errorf("plan contains no usable sub-queries")}
	}
	return queries, nil
}

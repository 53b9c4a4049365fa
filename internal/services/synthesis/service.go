package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
)

// Service answers one sub-query from the session's indexed evidence.
// The top-k most relevant chunks are presented to the model as labeled
// sources and the answer must cite them inline; citation labels resolve
// back to source URLs.
type Service struct {
	logger     arbor.ILogger
	index      interfaces.VectorIndex
	llmService interfaces.LLMService
	topK       int
}

// NewService creates the synthesizer.
func NewService(index interfaces.VectorIndex, llmService interfaces.LLMService, topK int, logger arbor.ILogger) *Service {
	if topK <= 0 {
		topK = 8
	}
	return &Service{
		logger:     logger,
		index:      index,
		llmService: llmService,
		topK:       topK,
	}
}

var citationPattern = regexp.MustCompile(`\[S(\d+)\]`)

// Synthesize produces the answer for a sub-query. When the session
// index holds nothing relevant the model is still asked, but the answer
// comes back flagged ungrounded rather than as an error; the report
// renders it as unanswered.
func (s *Service) Synthesize(ctx context.Context, sessionID string, subQuery *models.SubQuery) (*models.Answer, error) {
	subQuery.AdvanceTo(models.SubQueryStatusSynthesizing)

	chunks, err := s.index.Query(ctx, sessionID, subQuery.Text, s.topK)
	if err != nil {
		return nil, &models.SynthesisError{SubQuery: subQuery.Text, Err: err}
	}

	ungrounded := len(chunks) == 0
	if ungrounded {
		s.logger.Warn().
			Str("session_id", sessionID).
			Str("sub_query", subQuery.Text).
			Msg("No evidence retrieved for sub-query")
	}

	sources, labels := labelSources(chunks)
	prompt := buildPrompt(subQuery.Text, chunks, labels)

	response, err := s.llmService.Complete(ctx, prompt)
	if err != nil {
		return nil, &models.SynthesisError{SubQuery: subQuery.Text, Err: err}
	}

	text := strings.TrimSpace(response)
	if text == "" {
		return nil, &models.SynthesisError{SubQuery: subQuery.Text, Err: fmt.Errorf("model returned an empty answer")}
	}

	citations := resolveCitations(text, sources)

	s.logger.Info().
		Str("session_id", sessionID).
		Str("sub_query", subQuery.Text).
		Int("evidence_chunks", len(chunks)).
		Int("citations", len(citations)).
		Msg("Sub-query synthesized")

	return &models.Answer{
		Text:        text,
		Citations:   citations,
		Ungrounded:  ungrounded,
		GeneratedAt: time.Now(),
	}, nil
}

// labelSources assigns [S1]-style labels to the distinct documents
// behind the retrieved chunks, in order of first appearance.
func labelSources(chunks []models.ScoredChunk) ([]string, map[string]int) {
	labels := make(map[string]int)
	sources := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if _, ok := labels[chunk.Chunk.DocURL]; !ok {
			labels[chunk.Chunk.DocURL] = len(sources) + 1
			sources = append(sources, chunk.Chunk.DocURL)
		}
	}
	return sources, labels
}

func buildPrompt(question string, chunks []models.ScoredChunk, labels map[string]int) string {
	if len(chunks) == 0 {
		var b strings.Builder
		b.WriteString("No sources could be gathered for this question. Answer from general knowledge,\n")
		b.WriteString("state clearly that the answer is not backed by retrieved sources, and do not invent citations.\n\n")
		fmt.Fprintf(&b, "Question: %s\n", question)
		return b.String()
	}

	var b strings.Builder
	b.WriteString("Answer the question using ONLY the sources below.\n")
	b.WriteString("Cite sources inline with their labels, e.g. [S1] or [S2].\n")
	b.WriteString("If the sources do not contain the answer, say so explicitly.\n\n")

	for _, chunk := range chunks {
		label := labels[chunk.Chunk.DocURL]
		fmt.Fprintf(&b, "[S%d] %s", label, chunk.Chunk.DocURL)
		if chunk.Chunk.DocTitle != "" {
			fmt.Fprintf(&b, " (%s)", chunk.Chunk.DocTitle)
		}
		b.WriteString("\n")
		b.WriteString(chunk.Chunk.Text)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}

// resolveCitations maps the [S#] labels used in the answer back to
// source URLs, deduplicated in first-use order. Labels pointing at
// nothing are dropped.
func resolveCitations(text string, sources []string) []string {
	seen := make(map[string]bool)
	var citations []string
	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(sources) {
			continue
		}
		url := sources[n-1]
		if !seen[url] {
			seen[url] = true
			citations = append(citations, url)
		}
	}
	return citations
}

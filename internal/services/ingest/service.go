package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
	"github.com/ternarybob/profundo/internal/services/chunker"
	"github.com/ternarybob/profundo/internal/services/workers"
)

// Service turns one sub-query into indexed chunks: web search, then a
// concurrent fetch/extract/chunk/embed/index pipeline per result URL.
// Individual document failures are absorbed; a sub-query only fails
// when not a single document survives.
type Service struct {
	logger           arbor.ILogger
	search           interfaces.SearchProvider
	fetcher          interfaces.FetchProvider
	extractor        interfaces.Extractor
	chunker          *chunker.Service
	index            interfaces.VectorIndex
	llm              interfaces.LLMService
	maxSearchResults int
	fetchConcurrency int

	mu       sync.Mutex
	ingested map[string]string      // sessionID+url -> content hash
	inFlight map[string]*sync.Mutex // serializes concurrent ingests of one URL
}

// NewService wires the ingest fan-out.
func NewService(
	search interfaces.SearchProvider,
	fetcher interfaces.FetchProvider,
	extractor interfaces.Extractor,
	chunkerService *chunker.Service,
	index interfaces.VectorIndex,
	llmService interfaces.LLMService,
	config *common.ResearchConfig,
	logger arbor.ILogger,
) *Service {
	maxResults := config.MaxSearchResults
	if maxResults <= 0 {
		maxResults = 8
	}
	concurrency := config.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	return &Service{
		logger:           logger,
		search:           search,
		fetcher:          fetcher,
		extractor:        extractor,
		chunker:          chunkerService,
		index:            index,
		llm:              llmService,
		maxSearchResults: maxResults,
		fetchConcurrency: concurrency,
		ingested:         make(map[string]string),
		inFlight:         make(map[string]*sync.Mutex),
	}
}

// Ingest researches one sub-query. On return the sub-query carries its
// document references with per-document outcomes; the error is non-nil
// only when search itself failed or no document produced indexed
// content.
func (s *Service) Ingest(ctx context.Context, sessionID string, subQuery *models.SubQuery) error {
	subQuery.AdvanceTo(models.SubQueryStatusSearching)

	results, err := s.search.Search(ctx, subQuery.Text, s.maxSearchResults)
	if err != nil {
		return fmt.Errorf("search failed for %q: %w", subQuery.Text, err)
	}
	subQuery.SearchQueries = append(subQuery.SearchQueries, subQuery.Text)

	if len(results) == 0 {
		s.logger.Warn().
			Str("session_id", sessionID).
			Str("sub_query", subQuery.Text).
			Msg("Search returned no results")
		return fmt.Errorf("no search results for %q", subQuery.Text)
	}

	subQuery.AdvanceTo(models.SubQueryStatusIngesting)

	docs := make([]*models.DocumentRef, 0, len(results))
	seenURLs := make(map[string]bool)
	for _, result := range results {
		if result.URL == "" || seenURLs[result.URL] {
			continue
		}
		seenURLs[result.URL] = true
		docs = append(docs, &models.DocumentRef{
			URL:     result.URL,
			Title:   result.Title,
			Snippet: result.Snippet,
		})
	}
	subQuery.Documents = docs

	pool := workers.NewPool(ctx, s.fetchConcurrency, s.logger)
	pool.Start()
	for _, doc := range docs {
		doc := doc
		if err := pool.Submit(func(jobCtx context.Context) error {
			if err := s.ingestDocument(jobCtx, sessionID, doc); err != nil {
				doc.FailureReason = err.Error()
				return &models.IngestError{URL: doc.URL, Err: err}
			}
			return nil
		}); err != nil {
			doc.FailureReason = err.Error()
		}
	}
	pool.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	indexed := 0
	for _, doc := range docs {
		if doc.Indexed {
			indexed++
		}
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Str("sub_query", subQuery.Text).
		Int("documents", len(docs)).
		Int("indexed", indexed).
		Msg("Sub-query ingest completed")

	if indexed == 0 {
		return fmt.Errorf("no documents could be ingested for %q", subQuery.Text)
	}
	return nil
}

// ingestDocument runs the per-URL pipeline. Re-ingesting a URL whose
// content is unchanged is a no-op; changed content replaces the old
// chunks. Concurrent sub-queries surfacing the same URL serialize on a
// per-key lock so the second one takes the hash-match path instead of
// indexing the document twice.
func (s *Service) ingestDocument(ctx context.Context, sessionID string, doc *models.DocumentRef) error {
	key := sessionID + "\x00" + doc.URL
	lock := s.urlLock(key)
	lock.Lock()
	defer lock.Unlock()

	fetched, err := s.fetcher.Fetch(ctx, doc.URL)
	if err != nil {
		return err
	}
	doc.ContentType = fetched.ContentType
	doc.FetchedAt = time.Now()

	content, err := s.extractor.Extract(fetched.Body, fetched.ContentType, doc.URL)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(content.Text)
	if text == "" {
		return fmt.Errorf("document yielded no text")
	}

	if content.Title != "" && doc.Title == "" {
		doc.Title = content.Title
	}
	doc.ExtractedText = text
	doc.ContentHash = contentHash(text)

	s.mu.Lock()
	previousHash, seen := s.ingested[key]
	s.mu.Unlock()

	if seen && previousHash == doc.ContentHash {
		s.logger.Debug().
			Str("url", doc.URL).
			Msg("Document already indexed with identical content, skipping")
		doc.Indexed = true
		return nil
	}
	if seen {
		if err := s.index.RemoveDocument(ctx, sessionID, doc.URL); err != nil {
			return fmt.Errorf("failed to replace stale chunks: %w", err)
		}
	}

	chunks := s.chunker.Chunk(sessionID, doc, text)
	if len(chunks) == 0 {
		return fmt.Errorf("document produced no chunks")
	}

	for i := range chunks {
		embedding, err := s.llm.Embed(ctx, chunks[i].Text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}
		chunks[i].Embedding = embedding
	}

	if err := s.index.Add(ctx, chunks); err != nil {
		return err
	}

	s.mu.Lock()
	s.ingested[key] = doc.ContentHash
	s.mu.Unlock()

	doc.Chunks = chunks
	doc.Indexed = true

	s.logger.Debug().
		Str("url", doc.URL).
		Int("chunks", len(chunks)).
		Msg("Document indexed")

	return nil
}

// urlLock returns the lock guarding one session+URL key.
func (s *Service) urlLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.inFlight[key]
	if !ok {
		lock = &sync.Mutex{}
		s.inFlight[key] = lock
	}
	return lock
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/models"
	"github.com/ternarybob/profundo/internal/services/chunker"
)

type stubSearch struct {
	results []models.SearchResult
	err     error
}

func (s *stubSearch) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	return s.results, s.err
}

type stubFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	failAt map[string]error
	calls  map[string]int
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*models.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	if err, ok := f.failAt[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, &models.FetchError{URL: url, Kind: models.FetchErrorNotFound, Err: errors.New("no stub page")}
	}
	return &models.FetchResult{URL: url, Body: []byte(body), ContentType: "text/plain", StatusCode: 200}, nil
}

type passthroughExtractor struct{}

func (passthroughExtractor) Extract(raw []byte, contentType, sourceURL string) (*models.ExtractedContent, error) {
	return &models.ExtractedContent{Text: string(raw), SourceURL: sourceURL}, nil
}

type stubIndex struct {
	mu      sync.Mutex
	chunks  []models.Chunk
	removed []string
}

func (s *stubIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *stubIndex) Query(ctx context.Context, sessionID, queryText string, k int) ([]models.ScoredChunk, error) {
	return nil, nil
}

func (s *stubIndex) RemoveDocument(ctx context.Context, sessionID, docURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, docURL)
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if !(c.SessionID == sessionID && c.DocURL == docURL) {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return nil
}

type stubEmbedLLM struct {
	delay    time.Duration // slows each embed to widen concurrency windows
	failText string        // embeds of text containing this marker fail
}

func (s *stubEmbedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (s *stubEmbedLLM) CompleteStructured(ctx context.Context, prompt string, schema map[string]interface{}) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (s *stubEmbedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.failText != "" && strings.Contains(text, s.failText) {
		return nil, &models.TransportError{Op: "embed", Err: errors.New("embed failed")}
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedLLM) EmbedDimension() int { return 3 }
func (s *stubEmbedLLM) Close() error        { return nil }

func newTestService(search *stubSearch, fetcher *stubFetcher, index *stubIndex, llm *stubEmbedLLM) *Service {
	logger := arbor.NewLogger()
	cfg := &common.ResearchConfig{MaxSearchResults: 8, FetchConcurrency: 3, ChunkSize: 1200, ChunkOverlap: 200}
	return NewService(search, fetcher, passthroughExtractor{}, chunker.NewService(cfg, logger), index, llm, cfg, logger)
}

func subQuery(text string) *models.SubQuery {
	return &models.SubQuery{Index: 0, Text: text, Status: models.SubQueryStatusPending}
}

func TestIngestIndexesAllDocuments(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{
		{URL: "https://a.example.com/", Title: "A"},
		{URL: "https://b.example.com/", Title: "B"},
	}}
	fetcher := &stubFetcher{pages: map[string]string{
		"https://a.example.com/": "content of page a",
		"https://b.example.com/": "content of page b",
	}}
	index := &stubIndex{}
	sq := subQuery("caffeine and sleep")

	err := newTestService(search, fetcher, index, &stubEmbedLLM{}).Ingest(context.Background(), "s1", sq)
	require.NoError(t, err)

	require.Len(t, sq.Documents, 2)
	for _, doc := range sq.Documents {
		assert.True(t, doc.Indexed, "document %s should be indexed", doc.URL)
		assert.NotEmpty(t, doc.ContentHash)
	}
	assert.Len(t, index.chunks, 2)
	for _, chunk := range index.chunks {
		assert.Equal(t, "s1", chunk.SessionID)
		assert.NotEmpty(t, chunk.Embedding)
	}
}

func TestIngestAbsorbsPerDocumentFailures(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{
		{URL: "https://good.example.com/"},
		{URL: "https://dead.example.com/"},
	}}
	fetcher := &stubFetcher{
		pages: map[string]string{"https://good.example.com/": "useful content"},
		failAt: map[string]error{
			"https://dead.example.com/": &models.FetchError{URL: "https://dead.example.com/", Kind: models.FetchErrorNotFound, Err: errors.New("404")},
		},
	}
	index := &stubIndex{}
	sq := subQuery("some query")

	err := newTestService(search, fetcher, index, &stubEmbedLLM{}).Ingest(context.Background(), "s1", sq)
	require.NoError(t, err, "one live document is enough")

	var good, dead *models.DocumentRef
	for _, doc := range sq.Documents {
		switch doc.URL {
		case "https://good.example.com/":
			good = doc
		case "https://dead.example.com/":
			dead = doc
		}
	}
	require.NotNil(t, good)
	require.NotNil(t, dead)
	assert.True(t, good.Indexed)
	assert.False(t, dead.Indexed)
	assert.NotEmpty(t, dead.FailureReason)
}

func TestIngestFailsWhenNothingSurvives(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{{URL: "https://dead.example.com/"}}}
	fetcher := &stubFetcher{failAt: map[string]error{
		"https://dead.example.com/": errors.New("connection refused"),
	}}
	sq := subQuery("doomed query")

	err := newTestService(search, fetcher, &stubIndex{}, &stubEmbedLLM{}).Ingest(context.Background(), "s1", sq)
	require.Error(t, err)
}

func TestIngestSearchFailure(t *testing.T) {
	search := &stubSearch{err: &models.TransportError{Op: "search", Err: errors.New("down")}}
	sq := subQuery("query")

	err := newTestService(search, &stubFetcher{}, &stubIndex{}, &stubEmbedLLM{}).Ingest(context.Background(), "s1", sq)
	require.Error(t, err)
}

func TestIngestEmptySearchResults(t *testing.T) {
	search := &stubSearch{results: nil}
	sq := subQuery("obscure query")

	err := newTestService(search, &stubFetcher{}, &stubIndex{}, &stubEmbedLLM{}).Ingest(context.Background(), "s1", sq)
	require.Error(t, err)
}

func TestIngestDeduplicatesURLs(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{
		{URL: "https://a.example.com/"},
		{URL: "https://a.example.com/"},
	}}
	fetcher := &stubFetcher{pages: map[string]string{"https://a.example.com/": "content"}}
	sq := subQuery("query")

	err := newTestService(search, fetcher, &stubIndex{}, &stubEmbedLLM{}).Ingest(context.Background(), "s1", sq)
	require.NoError(t, err)
	assert.Len(t, sq.Documents, 1)
	assert.Equal(t, 1, fetcher.calls["https://a.example.com/"])
}

func TestIngestConcurrentSubQueriesIndexSharedURLOnce(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{{URL: "https://shared.example.com/"}}}
	fetcher := &stubFetcher{pages: map[string]string{"https://shared.example.com/": "shared source content"}}
	index := &stubIndex{}
	service := newTestService(search, fetcher, index, &stubEmbedLLM{delay: 50 * time.Millisecond})

	queries := []*models.SubQuery{subQuery("first angle"), subQuery("second angle")}
	errs := make([]error, len(queries))
	var wg sync.WaitGroup
	for i := range queries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = service.Ingest(context.Background(), "s1", queries[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Len(t, index.chunks, 1, "a URL shared by concurrent sub-queries must be indexed once")
	assert.Empty(t, index.removed)
	for _, sq := range queries {
		require.Len(t, sq.Documents, 1)
		assert.True(t, sq.Documents[0].Indexed)
	}
}

func TestIngestEmbedFailureExcludesOnlyThatDocument(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{
		{URL: "https://good.example.com/"},
		{URL: "https://bad.example.com/"},
	}}
	fetcher := &stubFetcher{pages: map[string]string{
		"https://good.example.com/": "useful content",
		"https://bad.example.com/":  "unembeddable content",
	}}
	index := &stubIndex{}
	sq := subQuery("query")

	err := newTestService(search, fetcher, index, &stubEmbedLLM{failText: "unembeddable"}).Ingest(context.Background(), "s1", sq)
	require.NoError(t, err, "the sibling document still carries the sub-query")

	var good, bad *models.DocumentRef
	for _, doc := range sq.Documents {
		switch doc.URL {
		case "https://good.example.com/":
			good = doc
		case "https://bad.example.com/":
			bad = doc
		}
	}
	require.NotNil(t, good)
	require.NotNil(t, bad)
	assert.True(t, good.Indexed)
	assert.False(t, bad.Indexed)
	assert.NotEmpty(t, bad.FailureReason)
	require.Len(t, index.chunks, 1)
	assert.Contains(t, index.chunks[0].Text, "useful content")
}

func TestIngestUnchangedContentIsIdempotent(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{{URL: "https://a.example.com/"}}}
	fetcher := &stubFetcher{pages: map[string]string{"https://a.example.com/": "stable content"}}
	index := &stubIndex{}
	service := newTestService(search, fetcher, index, &stubEmbedLLM{})

	require.NoError(t, service.Ingest(context.Background(), "s1", subQuery("first pass")))
	require.Len(t, index.chunks, 1)

	require.NoError(t, service.Ingest(context.Background(), "s1", subQuery("second pass")))
	assert.Len(t, index.chunks, 1, "re-ingesting identical content must not duplicate chunks")
	assert.Empty(t, index.removed)
}

func TestIngestChangedContentReplacesChunks(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{{URL: "https://a.example.com/"}}}
	fetcher := &stubFetcher{pages: map[string]string{"https://a.example.com/": "version one"}}
	index := &stubIndex{}
	service := newTestService(search, fetcher, index, &stubEmbedLLM{})

	require.NoError(t, service.Ingest(context.Background(), "s1", subQuery("first pass")))

	fetcher.mu.Lock()
	fetcher.pages["https://a.example.com/"] = "version two, substantially updated"
	fetcher.mu.Unlock()

	require.NoError(t, service.Ingest(context.Background(), "s1", subQuery("second pass")))
	assert.Contains(t, index.removed, "https://a.example.com/")
	require.Len(t, index.chunks, 1)
	assert.Contains(t, index.chunks[0].Text, "version two")
}

func TestIngestEmptyDocumentText(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{{URL: "https://empty.example.com/"}}}
	fetcher := &stubFetcher{pages: map[string]string{"https://empty.example.com/": "   "}}
	sq := subQuery("query")

	err := newTestService(search, fetcher, &stubIndex{}, &stubEmbedLLM{}).Ingest(context.Background(), "s1", sq)
	require.Error(t, err, "an empty document is a failed document, and it was the only one")
	assert.False(t, sq.Documents[0].Indexed)
}

func TestIngestStatusAdvances(t *testing.T) {
	search := &stubSearch{results: []models.SearchResult{{URL: "https://a.example.com/"}}}
	fetcher := &stubFetcher{pages: map[string]string{"https://a.example.com/": "content"}}
	sq := subQuery("query")

	require.NoError(t, newTestService(search, fetcher, &stubIndex{}, &stubEmbedLLM{}).Ingest(context.Background(), "s1", sq))
	assert.Equal(t, models.SubQueryStatusIngesting, sq.Status)
}

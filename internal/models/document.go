package models

import (
	"time"
)

// DocumentRef represents one fetched and extracted source document.
// URL is the unique key within a session; re-ingestion of the same URL
// with a matching content hash is a no-op.
type DocumentRef struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Snippet       string    `json:"snippet,omitempty"` // search-result snippet that led here
	FetchedAt     time.Time `json:"fetched_at"`
	ContentHash   string    `json:"content_hash"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	Chunks        []Chunk   `json:"chunks,omitempty"`
	Indexed       bool      `json:"indexed"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// Chunk is a bounded window of extracted document text, embedded
// independently for retrieval. Chunks are created once during ingest and
// never mutated.
type Chunk struct {
	ID        string    `json:"id" badgerhold:"key"`
	SessionID string    `json:"session_id" badgerhold:"index"`
	DocURL    string    `json:"doc_url"`
	DocTitle  string    `json:"doc_title"`
	Seq       int       `json:"seq"` // window order within the document
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredChunk pairs a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Answer is a grounded (or explicitly ungrounded) response for one
// sub-query. Citations reference DocumentRef URLs in first-use order.
type Answer struct {
	Text        string    `json:"text"`
	Citations   []string  `json:"citations"`
	Ungrounded  bool      `json:"ungrounded"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SearchResult is one candidate source returned by a search provider.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// FetchResult is the raw payload of a successful fetch.
type FetchResult struct {
	URL         string `json:"url"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	StatusCode  int    `json:"status_code"`
}

// ExtractedContent is the normalized output of the content extractor.
// Empty Text is a valid result, not an error; the caller decides whether
// that counts as an ingest failure.
type ExtractedContent struct {
	Title       string            `json:"title"`
	Text        string            `json:"text"`
	SourceURL   string            `json:"source_url"`
	RetrievedAt time.Time         `json:"retrieved_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CacheEntry is a persisted response keyed by request fingerprint.
// Expired entries are treated as misses and lazily evicted.
type CacheEntry struct {
	Key      string        `json:"key" badgerhold:"key"`
	Provider string        `json:"provider"`
	Value    []byte        `json:"value"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"` // zero means no expiry
}

// Expired reports whether the entry's TTL has elapsed at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.StoredAt.Add(e.TTL))
}

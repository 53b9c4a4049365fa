package interfaces

import (
	"context"

	"github.com/ternarybob/profundo/internal/models"
)

// SearchProvider issues a web or academic search and returns candidate
// sources ordered by relevance. Failures surface as retryable transport
// errors.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

// FetchProvider retrieves the raw bytes of a URL. Failures are
// classified as models.FetchError (not_found, timeout, blocked).
type FetchProvider interface {
	Fetch(ctx context.Context, url string) (*models.FetchResult, error)
}

// Extractor normalizes raw fetched bytes into clean text plus metadata.
// Content with no extractable text produces an empty result, not an
// error.
type Extractor interface {
	Extract(raw []byte, contentType, sourceURL string) (*models.ExtractedContent, error)
}

// VectorIndex stores embedded chunks with provenance and supports
// similarity retrieval scoped to one research session.
type VectorIndex interface {
	// Add indexes chunks. Dedup by content hash is the caller's
	// responsibility before calling Add.
	Add(ctx context.Context, chunks []models.Chunk) error

	// Query returns at most k chunks of the session ordered by
	// descending similarity; ties break by insertion order.
	Query(ctx context.Context, sessionID, queryText string, k int) ([]models.ScoredChunk, error)

	// RemoveDocument drops all chunks of one document so chunks are
	// never orphaned when a DocumentRef is discarded.
	RemoveDocument(ctx context.Context, sessionID, docURL string) error
}

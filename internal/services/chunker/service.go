package chunker

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/models"
)

// Service splits extracted text into fixed-size overlapping windows.
// The overlap keeps sentences that straddle a boundary retrievable from
// both sides.
type Service struct {
	logger    arbor.ILogger
	chunkSize int
	overlap   int
}

// NewService creates a chunker with the configured window geometry.
func NewService(config *common.ResearchConfig, logger arbor.ILogger) *Service {
	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	overlap := config.ChunkOverlap
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 6
	}

	return &Service{
		logger:    logger,
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// Chunk windows the document text and stamps each chunk with its
// session and source document. Whitespace-only text produces no chunks.
func (s *Service) Chunk(sessionID string, doc *models.DocumentRef, text string) []models.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	stride := s.chunkSize - s.overlap
	chunks := make([]models.Chunk, 0, (len(text)/stride)+1)
	now := time.Now()

	for start, seq := 0, 0; start < len(text); start, seq = alignRune(text, start+stride), seq+1 {
		end := start + s.chunkSize
		if end > len(text) {
			end = len(text)
		} else {
			end = alignRune(text, end)
		}

		window := strings.TrimSpace(text[start:end])
		if window != "" {
			chunks = append(chunks, models.Chunk{
				ID:        common.NewChunkID(),
				SessionID: sessionID,
				DocURL:    doc.URL,
				DocTitle:  doc.Title,
				Seq:       seq,
				Text:      window,
				CreatedAt: now,
			})
		}

		if end == len(text) {
			break
		}
	}

	s.logger.Debug().
		Str("url", doc.URL).
		Int("text_length", len(text)).
		Int("chunk_count", len(chunks)).
		Msg("Chunked document")

	return chunks
}

// alignRune moves a byte offset back to the nearest rune start so a
// window never slices a multibyte character in half.
func alignRune(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

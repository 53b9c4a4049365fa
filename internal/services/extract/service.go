package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
)

// Service turns raw fetched bytes into clean text. HTML goes through
// structure-aware markdown conversion, PDFs through pdfcpu. A document
// that yields no text is not an error; callers decide what to do with
// empty content.
type Service struct {
	logger arbor.ILogger
	html   *htmlExtractor
	pdf    *pdfExtractor
}

var _ interfaces.Extractor = (*Service)(nil)

// NewService creates the content extractor.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
		html:   newHTMLExtractor(logger),
		pdf:    newPDFExtractor(logger),
	}
}

// Extract dispatches on media type. Unknown types fall back to treating
// the bytes as plain text when they look textual.
func (s *Service) Extract(raw []byte, contentType, sourceURL string) (*models.ExtractedContent, error) {
	switch {
	case strings.Contains(contentType, "html") || strings.Contains(contentType, "xhtml"):
		return s.html.extract(raw, sourceURL)
	case strings.Contains(contentType, "pdf"):
		return s.pdf.extract(raw, sourceURL)
	case strings.HasPrefix(contentType, "text/"):
		return &models.ExtractedContent{
			Text:        strings.TrimSpace(string(raw)),
			SourceURL:   sourceURL,
			RetrievedAt: time.Now(),
			Metadata:    map[string]string{"content_type": contentType},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q for %s", contentType, sourceURL)
	}
}

package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/models"
)

// htmlExtractor cleans a page down to its main content and converts it
// to markdown so downstream chunking keeps headings and list structure.
type htmlExtractor struct {
	logger arbor.ILogger
}

func newHTMLExtractor(logger arbor.ILogger) *htmlExtractor {
	return &htmlExtractor{logger: logger}
}

func (e *htmlExtractor) extract(raw []byte, sourceURL string) (*models.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", sourceURL, err)
	}

	title := extractTitle(doc)

	doc.Find("script, style, noscript, nav, footer, aside, iframe").Remove()

	content := doc.Find("article, main, [role='main']").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	contentHTML, err := content.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize content from %s: %w", sourceURL, err)
	}

	converter := md.NewConverter(sourceURL, true, nil)
	markdown, err := converter.ConvertString(contentHTML)
	if err != nil {
		e.logger.Warn().Err(err).Str("url", sourceURL).Msg("Markdown conversion failed, falling back to plain text")
		markdown = content.Text()
	}

	text := collapseWhitespace(markdown)

	e.logger.Debug().
		Str("url", sourceURL).
		Str("title", title).
		Int("text_length", len(text)).
		Msg("Extracted HTML content")

	return &models.ExtractedContent{
		Title:       title,
		Text:        text,
		SourceURL:   sourceURL,
		RetrievedAt: time.Now(),
		Metadata:    map[string]string{"content_type": "text/html"},
	}, nil
}

// extractTitle tries the usual title carriers in order of reliability.
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return ""
}

// collapseWhitespace trims lines and squeezes runs of blank lines so
// chunk windows do not fill up with padding.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blankRun := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
			trimmed = ""
		} else {
			blankRun = 0
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

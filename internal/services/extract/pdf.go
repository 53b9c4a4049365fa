package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/models"
)

// pdfExtractor pulls text out of PDF documents with pdfcpu. pdfcpu
// works on files, so the bytes take a round trip through a temp
// directory.
type pdfExtractor struct {
	logger  arbor.ILogger
	tempDir string
}

func newPDFExtractor(logger arbor.ILogger) *pdfExtractor {
	tempDir := filepath.Join(os.TempDir(), "profundo-pdf")
	os.MkdirAll(tempDir, 0755)
	return &pdfExtractor{logger: logger, tempDir: tempDir}
}

func (e *pdfExtractor) extract(raw []byte, sourceURL string) (*models.ExtractedContent, error) {
	tempFile, err := os.CreateTemp(e.tempDir, "extract_*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp PDF file: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(raw); err != nil {
		tempFile.Close()
		return nil, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	tempFile.Close()

	pdfCtx, err := api.ReadContextFile(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF from %s: %w", sourceURL, err)
	}
	pageCount := pdfCtx.PageCount

	outDir, err := os.MkdirTemp(e.tempDir, "pages_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempPath, outDir, nil, conf); err != nil {
		// Scanned or image-only PDFs yield no text; that is empty
		// content, not a failure.
		e.logger.Warn().Err(err).Str("url", sourceURL).Msg("PDF content extraction produced no text")
		return e.result("", "", sourceURL, pageCount), nil
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err != nil {
				continue
			}
		}
		pageTexts[pageNum] = string(content)
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text := strings.TrimSpace(pageTexts[pageNum])
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(text)
	}

	title := pdfTitle(pdfCtx)

	e.logger.Debug().
		Str("url", sourceURL).
		Int("pages", pageCount).
		Int("text_length", builder.Len()).
		Msg("Extracted PDF content")

	return e.result(title, builder.String(), sourceURL, pageCount), nil
}

func (e *pdfExtractor) result(title, text, sourceURL string, pageCount int) *models.ExtractedContent {
	return &models.ExtractedContent{
		Title:       title,
		Text:        text,
		SourceURL:   sourceURL,
		RetrievedAt: time.Now(),
		Metadata: map[string]string{
			"content_type": "application/pdf",
			"page_count":   fmt.Sprintf("%d", pageCount),
		},
	}
}

func pdfTitle(ctx *model.Context) string {
	if ctx == nil {
		return ""
	}
	return strings.TrimSpace(ctx.Title)
}

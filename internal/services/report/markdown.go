package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ternarybob/profundo/internal/models"
)

var filenamePattern = regexp.MustCompile(`[^a-z0-9]+`)

// RenderMarkdown renders a report as a markdown document: topic title,
// one section per sub-query, sources listed under each answered
// section.
func RenderMarkdown(report *models.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", report.Topic)
	fmt.Fprintf(&b, "*Generated: %s*\n\n", report.GeneratedAt.Format("2 January 2006 15:04"))

	for _, section := range report.Sections {
		fmt.Fprintf(&b, "## %s\n\n", section.Heading)

		if section.Unanswered {
			reason := section.Reason
			if reason == "" {
				reason = "this question could not be answered"
			}
			fmt.Fprintf(&b, "*No answer: %s.*\n\n", strings.TrimSuffix(reason, "."))
			if section.Body != "" {
				b.WriteString(section.Body)
				b.WriteString("\n\n")
			}
			continue
		}

		b.WriteString(section.Body)
		b.WriteString("\n\n")

		if len(section.Citations) > 0 {
			b.WriteString("**Sources:**\n\n")
			for i, url := range section.Citations {
				fmt.Fprintf(&b, "%d. <%s>\n", i+1, url)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// WriteMarkdown saves the rendered report to outputDir with a filename
// derived from the topic, and returns the written path.
func WriteMarkdown(report *models.Report, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(outputDir, reportFilename(report.Topic)+".md")
	if err := os.WriteFile(path, []byte(RenderMarkdown(report)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// reportFilename slugs the topic into a safe filename.
func reportFilename(topic string) string {
	slug := filenamePattern.ReplaceAllString(strings.ToLower(topic), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "research_report"
	}
	if len(slug) > 80 {
		slug = strings.Trim(slug[:80], "_")
	}
	return slug + "_report"
}

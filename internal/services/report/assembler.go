package report

import (
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/models"
)

// Assembler builds the final report from a completed session. Sections
// come out in plan order, one per sub-query, regardless of completion
// order or outcome; failed or evidence-less sub-queries become
// unanswered sections.
type Assembler struct {
	logger arbor.ILogger
}

// NewAssembler creates the report assembler.
func NewAssembler(logger arbor.ILogger) *Assembler {
	return &Assembler{logger: logger}
}

// Assemble produces the report for a session. The section count always
// equals the planned sub-query count.
func (a *Assembler) Assemble(session *models.ResearchSession) *models.Report {
	subQueries := make([]*models.SubQuery, len(session.SubQueries))
	copy(subQueries, session.SubQueries)
	sort.SliceStable(subQueries, func(i, j int) bool {
		return subQueries[i].Index < subQueries[j].Index
	})

	sections := make([]models.ReportSection, 0, len(subQueries))
	answered := 0
	for _, sq := range subQueries {
		section := a.buildSection(sq)
		if !section.Unanswered {
			answered++
		}
		sections = append(sections, section)
	}

	a.logger.Info().
		Str("session_id", session.ID).
		Int("sections", len(sections)).
		Int("answered", answered).
		Msg("Report assembled")

	return &models.Report{
		Topic:       session.Topic,
		SessionID:   session.ID,
		Sections:    sections,
		GeneratedAt: time.Now(),
	}
}

func (a *Assembler) buildSection(sq *models.SubQuery) models.ReportSection {
	section := models.ReportSection{Heading: sq.Text}

	switch {
	case sq.Status == models.SubQueryStatusError:
		section.Unanswered = true
		section.Reason = sq.FailureReason
		if section.Reason == "" {
			section.Reason = "research for this question failed"
		}
	case sq.Answer == nil || sq.Answer.Text == "":
		section.Unanswered = true
		section.Reason = "no supporting sources could be gathered for this question"
	case sq.Answer.Ungrounded:
		// Keep the model's text, but flag that nothing backs it.
		section.Unanswered = true
		section.Reason = "not backed by retrieved sources"
		section.Body = sq.Answer.Text
	default:
		section.Body = sq.Answer.Text
		section.Citations = dedupeCitations(sq.Answer.Citations)
	}

	return section
}

// dedupeCitations keeps first-use order.
func dedupeCitations(citations []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range citations {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

package models

import (
	"time"
)

// Report is the assembled output of a research session. Sections follow
// the planner's original sub-query order regardless of completion order,
// and every planned sub-query appears exactly once.
type Report struct {
	Topic       string          `json:"topic"`
	SessionID   string          `json:"session_id"`
	Sections    []ReportSection `json:"sections"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ReportSection is one answered (or explicitly unanswered) sub-query.
type ReportSection struct {
	Heading    string   `json:"heading"` // the sub-query text
	Body       string   `json:"body"`
	Citations  []string `json:"citations"` // ordered unique source URLs
	Unanswered bool     `json:"unanswered"`
	Reason     string   `json:"reason,omitempty"`
}

package models

import (
	"time"
)

// SessionStatus represents the lifecycle state of a research session
type SessionStatus string

const (
	SessionStatusPlanning   SessionStatus = "planning"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusComplete   SessionStatus = "complete"
	SessionStatusFailed     SessionStatus = "failed"
)

// SubQueryStatus represents the processing state of a single sub-query.
// Transitions only advance forward; a retry resets to the prior stage,
// never back to pending.
type SubQueryStatus string

const (
	SubQueryStatusPending      SubQueryStatus = "pending"
	SubQueryStatusSearching    SubQueryStatus = "searching"
	SubQueryStatusIngesting    SubQueryStatus = "ingesting"
	SubQueryStatusSynthesizing SubQueryStatus = "synthesizing"
	SubQueryStatusDone         SubQueryStatus = "done"
	SubQueryStatusError        SubQueryStatus = "error"
)

// ResearchSession is the root aggregate for one end-to-end research run.
// It is owned exclusively by the orchestrator; other services receive
// sub-queries or the session ID, never the session itself.
type ResearchSession struct {
	ID          string         `json:"id"`
	Topic       string         `json:"topic"`
	SubQueries  []*SubQuery    `json:"sub_queries"`
	Status      SessionStatus  `json:"status"`
	Report      *Report        `json:"report,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// SubQuery is one planned sub-question with its search queries, ingested
// documents and synthesized answer. Index preserves plan order so the
// report can re-sort after concurrent completion.
type SubQuery struct {
	Index         int             `json:"index"`
	Text          string          `json:"text"`
	SearchQueries []string        `json:"search_queries"`
	Documents     []*DocumentRef  `json:"documents"`
	Answer        *Answer         `json:"answer,omitempty"`
	Status        SubQueryStatus  `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// AdvanceTo moves the sub-query forward. Backward transitions are
// ignored so concurrent reporters cannot regress state.
func (sq *SubQuery) AdvanceTo(status SubQueryStatus) {
	if subQueryRank(status) > subQueryRank(sq.Status) {
		sq.Status = status
	}
}

func subQueryRank(s SubQueryStatus) int {
	switch s {
	case SubQueryStatusPending:
		return 0
	case SubQueryStatusSearching:
		return 1
	case SubQueryStatusIngesting:
		return 2
	case SubQueryStatusSynthesizing:
		return 3
	case SubQueryStatusDone, SubQueryStatusError:
		return 4
	default:
		return -1
	}
}

// HasIngestedDocuments reports whether at least one document was usefully
// indexed for this sub-query. Synthesis only runs when this is true.
func (sq *SubQuery) HasIngestedDocuments() bool {
	for _, doc := range sq.Documents {
		if doc.Indexed {
			return true
		}
	}
	return false
}

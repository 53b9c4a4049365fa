package orchestrator

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
	"github.com/ternarybob/profundo/internal/services/planner"
	"github.com/ternarybob/profundo/internal/services/report"
	"github.com/ternarybob/profundo/internal/services/workers"
)

// Ingester runs the search and ingest fan-out for one sub-query.
type Ingester interface {
	Ingest(ctx context.Context, sessionID string, subQuery *models.SubQuery) error
}

// Synthesizer answers one sub-query from indexed evidence.
type Synthesizer interface {
	Synthesize(ctx context.Context, sessionID string, subQuery *models.SubQuery) (*models.Answer, error)
}

// Planner decomposes a topic into sub-queries.
type Planner interface {
	Plan(ctx context.Context, topic string) ([]*models.SubQuery, error)
}

var _ Planner = (*planner.Service)(nil)

// Orchestrator drives a research session through its lifecycle:
// planning, concurrent per-sub-query research, then report assembly.
// Planning failure fails the session; anything after planning degrades
// to unanswered report sections instead.
type Orchestrator struct {
	logger      arbor.ILogger
	planner     Planner
	ingester    Ingester
	synthesizer Synthesizer
	assembler   *report.Assembler
	sessions    interfaces.SessionStorage
	concurrency int
	retryFailed bool
}

// New creates the orchestrator.
func New(
	plannerService Planner,
	ingester Ingester,
	synthesizer Synthesizer,
	assembler *report.Assembler,
	sessions interfaces.SessionStorage,
	config *common.ResearchConfig,
	logger arbor.ILogger,
) *Orchestrator {
	concurrency := config.SubQueryConcurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	return &Orchestrator{
		logger:      logger,
		planner:     plannerService,
		ingester:    ingester,
		synthesizer: synthesizer,
		assembler:   assembler,
		sessions:    sessions,
		concurrency: concurrency,
		retryFailed: config.RetryFailedQueries,
	}
}

// Research runs one topic end to end and returns the session with its
// report. The returned session is non-nil even on failure so callers
// can inspect how far it got.
func (o *Orchestrator) Research(ctx context.Context, topic string) (*models.ResearchSession, error) {
	session := &models.ResearchSession{
		ID:        common.NewSessionID(),
		Topic:     topic,
		Status:    models.SessionStatusPlanning,
		CreatedAt: time.Now(),
	}
	o.persist(ctx, session)

	o.logger.Info().
		Str("session_id", session.ID).
		Str("topic", topic).
		Msg("Research session started")

	plan, err := o.planner.Plan(ctx, topic)
	if err != nil {
		session.Status = models.SessionStatusFailed
		o.persist(ctx, session)
		o.logger.Error().Err(err).Str("session_id", session.ID).Msg("Planning failed, session aborted")
		return session, err
	}

	session.SubQueries = plan
	session.Status = models.SessionStatusInProgress
	o.persist(ctx, session)

	o.runSubQueries(ctx, session, plan)

	if o.retryFailed && ctx.Err() == nil {
		o.retryErroredSubQueries(ctx, session)
	}

	if err := ctx.Err(); err != nil {
		o.persist(context.WithoutCancel(ctx), session)
		o.logger.Warn().Str("session_id", session.ID).Msg("Research session cancelled")
		return session, err
	}

	session.Report = o.assembler.Assemble(session)
	session.Status = models.SessionStatusComplete
	now := time.Now()
	session.CompletedAt = &now
	o.persist(ctx, session)

	o.logger.Info().
		Str("session_id", session.ID).
		Int("sections", len(session.Report.Sections)).
		Msg("Research session complete")

	return session, nil
}

// runSubQueries researches the plan with bounded concurrency. Each
// sub-query fails independently.
func (o *Orchestrator) runSubQueries(ctx context.Context, session *models.ResearchSession, subQueries []*models.SubQuery) {
	pool := workers.NewPool(ctx, o.concurrency, o.logger)
	pool.Start()
	for _, sq := range subQueries {
		sq := sq
		if err := pool.Submit(func(jobCtx context.Context) error {
			o.processSubQuery(jobCtx, session.ID, sq)
			return nil
		}); err != nil {
			sq.Status = models.SubQueryStatusError
			sq.FailureReason = err.Error()
		}
	}
	pool.Wait()

	o.persist(context.WithoutCancel(ctx), session)
}

func (o *Orchestrator) processSubQuery(ctx context.Context, sessionID string, sq *models.SubQuery) {
	if err := ctx.Err(); err != nil {
		sq.Status = models.SubQueryStatusError
		sq.FailureReason = err.Error()
		return
	}

	// A retried sub-query that already has indexed evidence resumes
	// at synthesis.
	if !sq.HasIngestedDocuments() {
		if err := o.ingester.Ingest(ctx, sessionID, sq); err != nil {
			sq.Status = models.SubQueryStatusError
			sq.FailureReason = err.Error()
			o.logger.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("sub_query", sq.Text).
				Msg("Sub-query ingest failed")
			return
		}
	}

	answer, err := o.synthesizer.Synthesize(ctx, sessionID, sq)
	if err != nil {
		sq.Status = models.SubQueryStatusError
		sq.FailureReason = err.Error()
		o.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("sub_query", sq.Text).
			Msg("Sub-query synthesis failed")
		return
	}

	sq.Answer = answer
	sq.AdvanceTo(models.SubQueryStatusDone)
}

// retryErroredSubQueries gives failed sub-queries one more pass. Each
// resets to the stage that failed, not to pending: a synthesis failure
// keeps its indexed evidence and re-enters at synthesis, an ingest
// failure rewinds to searching. A second failure stands.
func (o *Orchestrator) retryErroredSubQueries(ctx context.Context, session *models.ResearchSession) {
	var retries []*models.SubQuery
	for _, sq := range session.SubQueries {
		if sq.Status != models.SubQueryStatusError {
			continue
		}
		if sq.HasIngestedDocuments() {
			sq.Status = models.SubQueryStatusSynthesizing
		} else {
			sq.Status = models.SubQueryStatusSearching
			sq.Documents = nil
		}
		sq.FailureReason = ""
		retries = append(retries, sq)
	}
	if len(retries) == 0 {
		return
	}

	o.logger.Info().
		Str("session_id", session.ID).
		Int("retry_count", len(retries)).
		Msg("Retrying failed sub-queries")

	o.runSubQueries(ctx, session, retries)
}

// persist saves the session, logging rather than failing on storage
// errors: a research run should not die because a snapshot write
// failed.
func (o *Orchestrator) persist(ctx context.Context, session *models.ResearchSession) {
	if o.sessions == nil {
		return
	}
	if err := o.sessions.SaveSession(ctx, session); err != nil {
		o.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to persist session")
	}
}

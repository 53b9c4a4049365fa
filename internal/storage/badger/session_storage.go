package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SessionStorage persists research sessions for inspection and resume.
type SessionStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *DB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

// SaveSession inserts or updates a session snapshot.
func (s *SessionStorage) SaveSession(ctx context.Context, session *models.ResearchSession) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.db.Store().Upsert(session.ID, session); err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession loads a session by ID.
func (s *SessionStorage) GetSession(ctx context.Context, id string) (*models.ResearchSession, error) {
	var session models.ResearchSession
	err := s.db.Store().Get(id, &session)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &session, nil
}

var _ interfaces.SessionStorage = (*SessionStorage)(nil)

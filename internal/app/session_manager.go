package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"medquiz-service/internal/domain"
)

// SessionManager enforces at most one active quiz session per user.
type SessionManager struct {
	sessions SessionRepository
	now      func() time.Time

	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionManager(sessions SessionRepository) *SessionManager {
	return NewSessionManagerWithClock(sessions, time.Now)
}

// NewSessionManagerWithClock allows deterministic timestamps in tests.
func NewSessionManagerWithClock(sessions SessionRepository, now func() time.Time) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		now:      now,
		locks:    make(map[int64]*userLock),
	}
}

// StartSession ends every active session of the user and opens a new one.
// totalQuestions <= 0 falls back to domain.DefaultTotalQuestions.
func (m *SessionManager) StartSession(ctx context.Context, userID int64, category, subcategory string, totalQuestions int) (domain.QuizSession, error) {
	if userID <= 0 {
		return domain.QuizSession{}, domain.ErrNotLoggedIn
	}
	if category == "" {
		return domain.QuizSession{}, domain.ErrMissingCategory
	}
	if totalQuestions <= 0 {
		totalQuestions = domain.DefaultTotalQuestions
	}

	unlock := m.lock(userID)
	defer unlock()

	now := m.now()
	if _, err := m.sessions.DeactivateSessions(ctx, userID, now); err != nil {
		return domain.QuizSession{}, err
	}
	return m.sessions.CreateSession(ctx, domain.QuizSession{
		UserID:         userID,
		Category:       category,
		Subcategory:    subcategory,
		TotalQuestions: totalQuestions,
		StartedAt:      now,
		Active:         true,
	})
}

// GetActiveSession returns the user's active session; ok is false when there is none.
func (m *SessionManager) GetActiveSession(ctx context.Context, userID int64) (domain.QuizSession, bool, error) {
	if userID <= 0 {
		return domain.QuizSession{}, false, nil
	}
	session, err := m.sessions.GetActiveSession(ctx, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.QuizSession{}, false, nil
	}
	if err != nil {
		return domain.QuizSession{}, false, err
	}
	return session, true, nil
}

// RecordProgress bumps the completed counter. Unknown ids are a no-op returning a zero session.
func (m *SessionManager) RecordProgress(ctx context.Context, sessionID int64) (domain.QuizSession, error) {
	session, err := m.sessions.UpdateSession(ctx, sessionID, func(s *domain.QuizSession) {
		s.QuestionsCompleted++
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.QuizSession{}, nil
	}
	return session, err
}

// MarkAnswered records that itemKey was scored within the session; false means it already was.
func (m *SessionManager) MarkAnswered(ctx context.Context, sessionID int64, itemKey string) (bool, error) {
	return m.sessions.MarkAnswered(ctx, sessionID, itemKey)
}

// UnmarkAnswered lets itemKey be scored again within the session.
func (m *SessionManager) UnmarkAnswered(ctx context.Context, sessionID int64, itemKey string) error {
	return m.sessions.UnmarkAnswered(ctx, sessionID, itemKey)
}

// EndSession deactivates all active sessions of the user. Idempotent.
func (m *SessionManager) EndSession(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return domain.ErrNotLoggedIn
	}
	unlock := m.lock(userID)
	defer unlock()

	_, err := m.sessions.DeactivateSessions(ctx, userID, m.now())
	return err
}

func (m *SessionManager) lock(userID int64) func() {
	m.mu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &userLock{}
		m.locks[userID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, userID)
		}
		m.mu.Unlock()
	}
}

package memory

import (
	"context"
	"time"

	"medquiz-service/internal/domain"
)

// Quiz session half of Store (app.SessionRepository).

func (s *Store) GetActiveSession(_ context.Context, userID int64) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.UserID == userID && session.Active {
			return session, nil
		}
	}
	return domain.QuizSession{}, domain.ErrSessionNotFound
}

func (s *Store) CreateSession(_ context.Context, session domain.QuizSession) (domain.QuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.Active {
		for _, existing := range s.sessions {
			if existing.UserID == session.UserID && existing.Active {
				return domain.QuizSession{}, domain.ErrConflict
			}
		}
	}
	s.sessionSeq++
	session.ID = s.sessionSeq
	s.sessions[session.ID] = session
	return session, nil
}

func (s *Store) UpdateSession(_ context.Context, id int64, update func(*domain.QuizSession)) (domain.QuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	update(&session)
	s.sessions[id] = session
	return session, nil
}

func (s *Store) DeactivateSessions(_ context.Context, userID int64, endedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		if session.UserID != userID || !session.Active {
			continue
		}
		ended := endedAt
		session.Active = false
		session.EndedAt = &ended
		s.sessions[id] = session
		delete(s.answered, id)
		n++
	}
	return n, nil
}

func (s *Store) MarkAnswered(_ context.Context, sessionID int64, itemKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false, domain.ErrSessionNotFound
	}
	set, ok := s.answered[sessionID]
	if !ok {
		set = make(map[string]struct{})
		s.answered[sessionID] = set
	}
	if _, seen := set[itemKey]; seen {
		return false, nil
	}
	set[itemKey] = struct{}{}
	return true, nil
}

func (s *Store) UnmarkAnswered(_ context.Context, sessionID int64, itemKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.answered[sessionID], itemKey)
	return nil
}

// Sessions returns every stored session of the user, oldest first.
func (s *Store) Sessions(userID int64) []domain.QuizSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.QuizSession{}
	for id := int64(1); id <= s.sessionSeq; id++ {
		if session, ok := s.sessions[id]; ok && session.UserID == userID {
			out = append(out, session)
		}
	}
	return out
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"medquiz-service/internal/domain"
)

const sessionColumns = `id, user_id, category, subcategory, questions_completed, total_questions, started_at, ended_at, is_active`

func scanSession(row pgx.Row) (domain.QuizSession, error) {
	var s domain.QuizSession
	err := row.Scan(&s.ID, &s.UserID, &s.Category, &s.Subcategory, &s.QuestionsCompleted, &s.TotalQuestions, &s.StartedAt, &s.EndedAt, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

func (s *Store) GetActiveSession(ctx context.Context, userID int64) (domain.QuizSession, error) {
	return scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE user_id=$1 AND is_active`, userID))
}

// CreateSession relies on the partial unique index to reject a second active session.
func (s *Store) CreateSession(ctx context.Context, session domain.QuizSession) (domain.QuizSession, error) {
	created, err := scanSession(s.pool.QueryRow(ctx,
		`INSERT INTO quiz_sessions (user_id, category, subcategory, questions_completed, total_questions, started_at, ended_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+sessionColumns,
		session.UserID, session.Category, session.Subcategory, session.QuestionsCompleted, session.TotalQuestions,
		session.StartedAt, session.EndedAt, session.Active))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return domain.QuizSession{}, domain.ErrConflict
		}
		return domain.QuizSession{}, err
	}
	return created, nil
}

func (s *Store) UpdateSession(ctx context.Context, id int64, update func(*domain.QuizSession)) (domain.QuizSession, error) {
	var out domain.QuizSession
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		session, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		update(&session)
		_, err = tx.Exec(ctx,
			`UPDATE quiz_sessions SET questions_completed=$2, total_questions=$3, ended_at=$4, is_active=$5 WHERE id=$1`,
			id, session.QuestionsCompleted, session.TotalQuestions, session.EndedAt, session.Active)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		out = session
		return nil
	})
	if err != nil {
		return domain.QuizSession{}, err
	}
	return out, nil
}

func (s *Store) DeactivateSessions(ctx context.Context, userID int64, endedAt time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quiz_sessions SET is_active=false, ended_at=$2 WHERE user_id=$1 AND is_active`, userID, endedAt)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) MarkAnswered(ctx context.Context, sessionID int64, itemKey string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO session_answers (session_id, item_key) VALUES ($1, $2) ON CONFLICT DO NOTHING`, sessionID, itemKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return false, domain.ErrSessionNotFound
		}
		return false, fmt.Errorf("mark answered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UnmarkAnswered(ctx context.Context, sessionID int64, itemKey string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM session_answers WHERE session_id=$1 AND item_key=$2`, sessionID, itemKey)
	if err != nil {
		return fmt.Errorf("unmark answered: %w", err)
	}
	return nil
}

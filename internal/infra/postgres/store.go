package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"medquiz-service/internal/domain"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store implements app.Repository on Postgres.
// Per-user stats updates run in a transaction holding a row lock.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, username, password_hash, external_id, first_name, last_name, avatar`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.ExternalID, &u.FirstName, &u.LastName, &u.Avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *Store) GetUsers(ctx context.Context, ids []int64) (map[int64]domain.User, error) {
	out := make(map[int64]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID int64) (domain.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE external_id=$1`, externalID))
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, external_id, first_name, last_name, avatar)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		user.Username, user.PasswordHash, user.ExternalID, user.FirstName, user.LastName, user.Avatar,
	).Scan(&user.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			if pgErr.ConstraintName == "users_external_id_key" {
				return domain.User{}, domain.ErrExternalIDTaken
			}
			return domain.User{}, domain.ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

const statsColumns = `user_id, total_attempts, correct_answers, streak, max_streak, last_activity_date, category_stats`

func scanStats(row pgx.Row) (domain.UserStats, error) {
	var (
		st  domain.UserStats
		raw []byte
	)
	err := row.Scan(&st.UserID, &st.TotalAttempts, &st.CorrectAnswers, &st.Streak, &st.MaxStreak, &st.LastActivityDate, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserStats{}, domain.ErrStatsNotFound
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("scan stats: %w", err)
	}
	st.Categories = make(map[string]domain.CategoryAggregate)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &st.Categories); err != nil {
			return domain.UserStats{}, fmt.Errorf("unmarshal category stats: %w", err)
		}
	}
	return st, nil
}

func (s *Store) GetStats(ctx context.Context, userID int64) (domain.UserStats, error) {
	return scanStats(s.pool.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id=$1`, userID))
}

func (s *Store) CreateStats(ctx context.Context, stats domain.UserStats) (domain.UserStats, error) {
	raw, err := categoriesJSON(stats)
	if err != nil {
		return domain.UserStats{}, err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO user_stats (`+statsColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		 ON CONFLICT (user_id) DO NOTHING`,
		stats.UserID, stats.TotalAttempts, stats.CorrectAnswers, stats.Streak, stats.MaxStreak, stats.LastActivityDate, raw)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("insert stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.UserStats{}, domain.ErrConflict
	}
	return stats.Clone(), nil
}

func (s *Store) UpdateStats(ctx context.Context, userID int64, update func(*domain.UserStats)) (domain.UserStats, error) {
	var out domain.UserStats
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO user_stats (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
			return fmt.Errorf("ensure stats: %w", err)
		}
		st, err := scanStats(tx.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id=$1 FOR UPDATE`, userID))
		if err != nil {
			return err
		}
		update(&st)
		raw, err := categoriesJSON(st)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE user_stats SET total_attempts=$2, correct_answers=$3, streak=$4, max_streak=$5,
			 last_activity_date=$6, category_stats=$7::jsonb WHERE user_id=$1`,
			userID, st.TotalAttempts, st.CorrectAnswers, st.Streak, st.MaxStreak, st.LastActivityDate, raw)
		if err != nil {
			return fmt.Errorf("update stats: %w", err)
		}
		out = st
		return nil
	})
	if err != nil {
		return domain.UserStats{}, err
	}
	return out, nil
}

func (s *Store) ListStats(ctx context.Context) ([]domain.UserStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+statsColumns+` FROM user_stats ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()
	out := []domain.UserStats{}
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func categoriesJSON(st domain.UserStats) (string, error) {
	if st.Categories == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(st.Categories)
	if err != nil {
		return "", fmt.Errorf("marshal category stats: %w", err)
	}
	return string(raw), nil
}

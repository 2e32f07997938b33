package app

import (
	"context"
	"time"

	"medquiz-service/internal/domain"
)

// UserRepository stores accounts. Username and external id are unique.
type UserRepository interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByExternalID(ctx context.Context, externalID int64) (domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	// GetUsers loads many users at once; unknown ids are absent from the result.
	GetUsers(ctx context.Context, ids []int64) (map[int64]domain.User, error)
}

// StatsRepository stores per-user aggregates.
// UpdateStats is an atomic read-modify-write per user; it creates zero stats when absent.
type StatsRepository interface {
	GetStats(ctx context.Context, userID int64) (domain.UserStats, error)
	CreateStats(ctx context.Context, stats domain.UserStats) (domain.UserStats, error)
	UpdateStats(ctx context.Context, userID int64, update func(*domain.UserStats)) (domain.UserStats, error)
	ListStats(ctx context.Context) ([]domain.UserStats, error)
}

// SessionRepository stores quiz sessions (in-memory, Postgres, etc).
type SessionRepository interface {
	GetActiveSession(ctx context.Context, userID int64) (domain.QuizSession, error)
	CreateSession(ctx context.Context, session domain.QuizSession) (domain.QuizSession, error)
	UpdateSession(ctx context.Context, id int64, update func(*domain.QuizSession)) (domain.QuizSession, error)
	// DeactivateSessions ends every active session of the user and returns how many were ended.
	DeactivateSessions(ctx context.Context, userID int64, endedAt time.Time) (int, error)
	// MarkAnswered records itemKey against the session and reports whether it was new.
	MarkAnswered(ctx context.Context, sessionID int64, itemKey string) (bool, error)
	// UnmarkAnswered releases a mark whose answer could not be scored. Unknown keys are ignored.
	UnmarkAnswered(ctx context.Context, sessionID int64, itemKey string) error
}

// ItemRepository resolves quiz content by id (from cache/backing store).
type ItemRepository interface {
	GetQuestion(ctx context.Context, id int64) (domain.Question, error)
	GetImageItem(ctx context.Context, id int64) (domain.ImageItem, error)
}

// CatalogRepository lists quiz content for browsing.
type CatalogRepository interface {
	ListQuestions(ctx context.Context, category, subcategory string) ([]domain.Question, error)
	ListImageItems(ctx context.Context, category string) ([]domain.ImageItem, error)
}

// ActivityRepository is the append-only activity log.
type ActivityRepository interface {
	AppendActivity(ctx context.Context, record domain.ActivityRecord) (domain.ActivityRecord, error)
	// ListActivity returns the user's records, most recent first; limit <= 0 means all.
	ListActivity(ctx context.Context, userID int64, limit int) ([]domain.ActivityRecord, error)
}

// Repository is the full persistence contract; infra/memory and infra/postgres implement it.
type Repository interface {
	UserRepository
	StatsRepository
	SessionRepository
	ItemRepository
	CatalogRepository
	ActivityRepository
}

// TokenStore keeps pending handshake tokens until they expire or are consumed.
type TokenStore interface {
	Save(ctx context.Context, handshake domain.Handshake) error
	Get(ctx context.Context, token string) (domain.Handshake, error)
	// Claim binds an external identity to a pending token without extending its lifetime.
	// The check and the write are atomic: a token claimed by another identity yields ErrHandshakeClaimed.
	Claim(ctx context.Context, token string, externalID int64) (domain.Handshake, error)
	// Consume returns and deletes the token in one step.
	Consume(ctx context.Context, token string) (domain.Handshake, error)
}

// ActivitySink observes appended activity records. Sinks are best-effort.
type ActivitySink interface {
	ActivityRecorded(ctx context.Context, record domain.ActivityRecord) error
}

package domain

import "time"

// ImageQuizCategory is the session category used for image-identification quizzes.
const ImageQuizCategory = "ImageQuiz"

// DefaultTotalQuestions is the question target of a session started without one.
const DefaultTotalQuestions = 10

// User is an account, created at registration or on the first bot handshake.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	ExternalID   *int64 `json:"externalId,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
}

// DisplayName prefers the first name, falling back to the username.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// Question is a true/false prompt.
type Question struct {
	ID          int64  `json:"id"`
	Prompt      string `json:"question"`
	Answer      bool   `json:"answer"`
	Explanation string `json:"explanation,omitempty"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
}

// CategoryKey buckets the question's aggregate as "category-subcategory" or "category".
func (q Question) CategoryKey() string {
	if q.Subcategory == "" {
		return q.Category
	}
	return q.Category + "-" + q.Subcategory
}

// ImageItem is an image-identification prompt with ordered options.
type ImageItem struct {
	ID            int64    `json:"id"`
	Category      string   `json:"category"`
	Subcategory   string   `json:"subcategory,omitempty"`
	ImageURL      string   `json:"imageUrl"`
	CorrectAnswer string   `json:"correctAnswer"`
	Options       []string `json:"options"`
	Explanation   string   `json:"explanation,omitempty"`
}

// CategoryKey buckets image answers by category alone.
func (i ImageItem) CategoryKey() string {
	return i.Category
}

// CategoryAggregate is the fixed-shape per-category counter pair.
type CategoryAggregate struct {
	Attempts int `json:"attempts"`
	Correct  int `json:"correct"`
}

// UserStats holds the global and per-category answer aggregates of one user.
// Invariants: CorrectAnswers <= TotalAttempts, MaxStreak >= Streak.
type UserStats struct {
	UserID           int64                        `json:"userId"`
	TotalAttempts    int                          `json:"totalAttempts"`
	CorrectAnswers   int                          `json:"correctAnswers"`
	Streak           int                          `json:"streak"`
	MaxStreak        int                          `json:"maxStreak"`
	LastActivityDate string                       `json:"lastActivityDate,omitempty"`
	Categories       map[string]CategoryAggregate `json:"categoryStats"`
}

// NewUserStats returns all-zero stats for a user.
func NewUserStats(userID int64) UserStats {
	return UserStats{UserID: userID, Categories: make(map[string]CategoryAggregate)}
}

// Clone deep-copies the category map.
func (s UserStats) Clone() UserStats {
	out := s
	out.Categories = make(map[string]CategoryAggregate, len(s.Categories))
	for k, v := range s.Categories {
		out.Categories[k] = v
	}
	return out
}

// RecordAnswer applies one graded answer to the aggregates.
func (s *UserStats) RecordAnswer(categoryKey string, correct bool, today string) {
	if s.Categories == nil {
		s.Categories = make(map[string]CategoryAggregate)
	}
	agg := s.Categories[categoryKey]
	agg.Attempts++
	s.TotalAttempts++
	if correct {
		agg.Correct++
		s.CorrectAnswers++
		s.Streak++
		if s.Streak > s.MaxStreak {
			s.MaxStreak = s.Streak
		}
	} else {
		s.Streak = 0
	}
	s.Categories[categoryKey] = agg
	s.LastActivityDate = today
}

// QuizSession is one bounded quiz attempt. Active sessions have a nil EndedAt.
type QuizSession struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"userId"`
	Category           string     `json:"category"`
	Subcategory        string     `json:"subcategory,omitempty"`
	QuestionsCompleted int        `json:"questionsCompleted"`
	TotalQuestions     int        `json:"totalQuestions"`
	StartedAt          time.Time  `json:"startedAt"`
	EndedAt            *time.Time `json:"endedAt,omitempty"`
	Active             bool       `json:"active"`
}

// Title is the human label shown for the session.
func (s QuizSession) Title() string {
	if s.Subcategory != "" {
		return s.Subcategory + " Quiz"
	}
	return s.Category + " Quiz"
}

// ActivityKind classifies activity records.
type ActivityKind string

const (
	ActivityQuizAnswer  ActivityKind = "quiz"
	ActivityImageAnswer ActivityKind = "image_quiz"
	ActivityAskAI       ActivityKind = "ask_ai"
)

// ActivityResult is the outcome stored on an activity record.
type ActivityResult string

const (
	ResultSuccess ActivityResult = "success"
	ResultFailure ActivityResult = "failure"
)

// ActivityRecord is an append-only log entry.
type ActivityRecord struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"userId"`
	Kind        ActivityKind   `json:"activityType"`
	Category    string         `json:"category,omitempty"`
	Subcategory string         `json:"subcategory,omitempty"`
	Result      ActivityResult `json:"result,omitempty"`
	Score       int            `json:"score"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Verdict is the outcome of a scored answer.
type Verdict struct {
	IsCorrect     bool   `json:"isCorrect"`
	Explanation   string `json:"explanation"`
	CorrectAnswer any    `json:"correctAnswer"`
}

// Handshake is a pending bot login correlation.
type Handshake struct {
	Token        string    `json:"token"`
	WebSessionID string    `json:"webSessionId,omitempty"`
	ExternalID   int64     `json:"externalId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Claimed reports whether the bot has bound an external identity to the token.
func (h Handshake) Claimed() bool {
	return h.ExternalID != 0
}

// Category is a top-level quiz category and its subcategories.
type Category struct {
	Name          string   `json:"name" yaml:"name"`
	Subcategories []string `json:"subcategories" yaml:"subcategories"`
}

// LeaderboardEntry is a ranked user row.
type LeaderboardEntry struct {
	UserID       int64  `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	Accuracy     int    `json:"accuracy"`
	TotalQuizzes int    `json:"totalQuizzes"`
	Score        int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a category ("" = overall).
type Leaderboard struct {
	Category  string             `json:"category,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

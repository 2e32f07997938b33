package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"medquiz-service/internal/domain"
)

const (
	overviewActivityLimit = 10
	// DefaultActivityLimit is the feed length when the caller does not ask for one.
	DefaultActivityLimit = 5
)

// StatsService derives read models from stored aggregates.
type StatsService struct {
	users    UserRepository
	stats    StatsRepository
	activity ActivityRepository
	now      func() time.Time
}

func NewStatsService(users UserRepository, stats StatsRepository, activity ActivityRepository) *StatsService {
	return &StatsService{users: users, stats: stats, activity: activity, now: time.Now}
}

// Overview is the dashboard summary.
type Overview struct {
	TotalQuizzes   int            `json:"totalQuizzes"`
	CorrectAnswers int            `json:"correctAnswers"`
	Accuracy       int            `json:"accuracy"`
	CurrentStreak  int            `json:"currentStreak"`
	BestStreak     int            `json:"bestStreak"`
	RecentActivity []ActivityView `json:"recentActivity"`
}

// Overview returns zeros for guests and ErrStatsNotFound when a user has no stats row.
func (s *StatsService) Overview(ctx context.Context, userID int64) (Overview, error) {
	if userID <= 0 {
		return Overview{RecentActivity: []ActivityView{}}, nil
	}
	stats, err := s.stats.GetStats(ctx, userID)
	if err != nil {
		return Overview{}, lookupErr("get stats", err)
	}
	recent, err := s.RecentActivity(ctx, userID, overviewActivityLimit)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		TotalQuizzes:   stats.TotalAttempts,
		CorrectAnswers: stats.CorrectAnswers,
		Accuracy:       percent(stats.CorrectAnswers, stats.TotalAttempts),
		CurrentStreak:  stats.Streak,
		BestStreak:     stats.MaxStreak,
		RecentActivity: recent,
	}, nil
}

// SubcategoryStats is one row of a category breakdown.
type SubcategoryStats struct {
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
	Correct  int    `json:"correct"`
	Accuracy int    `json:"accuracy"`
}

// CategoryBreakdown sums the aggregates belonging to one top-level category.
type CategoryBreakdown struct {
	Category       string             `json:"category"`
	TotalQuizzes   int                `json:"totalQuizzes"`
	CorrectAnswers int                `json:"correctAnswers"`
	Accuracy       int                `json:"accuracy"`
	Subcategories  []SubcategoryStats `json:"subcategories"`
}

// CategoryStats matches keys prefixed "<category>-", or every key for "all".
func (s *StatsService) CategoryStats(ctx context.Context, userID int64, category string) (CategoryBreakdown, error) {
	if category == "" {
		return CategoryBreakdown{}, domain.ErrMissingCategory
	}
	out := CategoryBreakdown{Category: category, Subcategories: []SubcategoryStats{}}
	if userID <= 0 {
		return out, nil
	}
	stats, err := s.stats.GetStats(ctx, userID)
	if errors.Is(err, domain.ErrStatsNotFound) {
		return out, nil
	}
	if err != nil {
		return CategoryBreakdown{}, domain.Internal("get stats", err)
	}
	return breakdown(stats, category), nil
}

func breakdown(stats domain.UserStats, category string) CategoryBreakdown {
	out := CategoryBreakdown{Category: category, Subcategories: []SubcategoryStats{}}
	keys := make([]string, 0, len(stats.Categories))
	for key := range stats.Categories {
		if category == "all" || strings.HasPrefix(key, category+"-") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		agg := stats.Categories[key]
		name := "General"
		if parts := strings.Split(key, "-"); len(parts) > 1 && parts[1] != "" {
			name = parts[1]
		}
		out.TotalQuizzes += agg.Attempts
		out.CorrectAnswers += agg.Correct
		out.Subcategories = append(out.Subcategories, SubcategoryStats{
			Name:     name,
			Attempts: agg.Attempts,
			Correct:  agg.Correct,
			Accuracy: percent(agg.Correct, agg.Attempts),
		})
	}
	out.Accuracy = percent(out.CorrectAnswers, out.TotalQuizzes)
	return out
}

// Progress returns the raw per-category aggregates.
func (s *StatsService) Progress(ctx context.Context, userID int64) (map[string]domain.CategoryAggregate, error) {
	if userID <= 0 {
		return map[string]domain.CategoryAggregate{}, nil
	}
	stats, err := s.stats.GetStats(ctx, userID)
	if errors.Is(err, domain.ErrStatsNotFound) {
		return map[string]domain.CategoryAggregate{}, nil
	}
	if err != nil {
		return nil, domain.Internal("get stats", err)
	}
	return stats.Clone().Categories, nil
}

// Leaderboard ranks every user with stats. An empty category or "all" ranks overall accuracy.
func (s *StatsService) Leaderboard(ctx context.Context, category string) (domain.Leaderboard, error) {
	boards, err := s.Leaderboards(ctx, []string{category})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return boards[category], nil
}

// Leaderboards ranks several categories from a single read of stats and users.
func (s *StatsService) Leaderboards(ctx context.Context, categories []string) (map[string]domain.Leaderboard, error) {
	all, err := s.stats.ListStats(ctx)
	if err != nil {
		return nil, domain.Internal("list stats", err)
	}
	ids := make([]int64, 0, len(all))
	for _, st := range all {
		ids = append(ids, st.UserID)
	}
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, domain.Internal("get users", err)
	}

	now := s.now()
	out := make(map[string]domain.Leaderboard, len(categories))
	for _, category := range categories {
		out[category] = domain.Leaderboard{Category: category, Entries: rank(all, users, category), UpdatedAt: now}
	}
	return out, nil
}

// rank skips stats rows whose user no longer exists.
func rank(all []domain.UserStats, users map[int64]domain.User, category string) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(all))
	for _, st := range all {
		user, ok := users[st.UserID]
		if !ok {
			continue
		}

		var accuracy, total int
		if category == "" || category == "all" {
			accuracy = percent(st.CorrectAnswers, st.TotalAttempts)
			total = st.TotalAttempts
		} else {
			b := breakdown(st, category)
			accuracy, total = b.Accuracy, b.TotalQuizzes
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:       user.ID,
			Name:         user.DisplayName(),
			Username:     user.Username,
			Accuracy:     accuracy,
			TotalQuizzes: total,
			Score:        int(math.Round(float64(accuracy) * math.Log(float64(total)+1))),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Accuracy != entries[j].Accuracy {
			return entries[i].Accuracy > entries[j].Accuracy
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}

// ActivityView is an activity record rendered for the feed.
type ActivityView struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Badge       string    `json:"badge"`
	Timestamp   time.Time `json:"timestamp"`
}

// RecentActivity renders the user's latest records, newest first.
func (s *StatsService) RecentActivity(ctx context.Context, userID int64, limit int) ([]ActivityView, error) {
	if userID <= 0 {
		return []ActivityView{}, nil
	}
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	records, err := s.activity.ListActivity(ctx, userID, limit)
	if err != nil {
		return nil, domain.Internal("list activity", err)
	}
	out := make([]ActivityView, 0, len(records))
	for _, r := range records {
		out = append(out, renderActivity(r))
	}
	return out, nil
}

func renderActivity(r domain.ActivityRecord) ActivityView {
	v := ActivityView{ID: r.ID, Type: "default", Title: "Activity", Timestamp: r.Timestamp}
	streak := detailInt(r.Details, "streak")
	if streak < 1 {
		streak = 1
	}
	topic := strings.TrimSpace(r.Category + " " + r.Subcategory)

	switch r.Kind {
	case domain.ActivityQuizAnswer:
		if r.Result == domain.ResultSuccess {
			v.Type = "success"
			v.Title = "Completed Quiz"
			v.Description = fmt.Sprintf("You scored well on %s quiz", topic)
			v.Badge = fmt.Sprintf("+%d streak", streak)
		} else {
			v.Type = "failure"
			v.Title = "Challenging Quiz"
			v.Description = fmt.Sprintf("You might need more practice with %s", topic)
			v.Badge = "Streak reset"
		}
	case domain.ActivityImageAnswer:
		v.Type = "image"
		v.Title = "Attempted Image Quiz"
		v.Description = fmt.Sprintf("You identified %d/1 anatomical structures correctly", r.Score)
		v.Badge = fmt.Sprintf("+%d streak", streak)
	case domain.ActivityAskAI:
		v.Type = "success"
		v.Title = "AI Tutor Question"
		q, _ := r.Details["question"].(string)
		if runes := []rune(q); len(runes) > 50 {
			q = string(runes[:50])
		}
		v.Description = "You asked about: " + q + "..."
		v.Badge = "Knowledge"
	}
	return v
}

// detailInt reads a number from a details payload that may have round-tripped through JSON.
func detailInt(details map[string]any, key string) int {
	switch n := details[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func lookupErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return domain.Internal(op, err)
}

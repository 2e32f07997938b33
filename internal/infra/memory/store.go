package memory

import (
	"context"
	"sort"
	"sync"

	"medquiz-service/internal/domain"
)

// Store is an in-process implementation of app.Repository.
// A single lock serialises writes, which makes every per-user update atomic.
type Store struct {
	mu sync.RWMutex

	userSeq, questionSeq, imageSeq, sessionSeq, activitySeq int64

	users      map[int64]domain.User
	byUsername map[string]int64
	byExternal map[int64]int64
	stats      map[int64]domain.UserStats
	questions  map[int64]domain.Question
	images     map[int64]domain.ImageItem
	sessions   map[int64]domain.QuizSession
	answered   map[int64]map[string]struct{}
	activity   map[int64][]domain.ActivityRecord
}

func NewStore() *Store {
	return &Store{
		users:      make(map[int64]domain.User),
		byUsername: make(map[string]int64),
		byExternal: make(map[int64]int64),
		stats:      make(map[int64]domain.UserStats),
		questions:  make(map[int64]domain.Question),
		images:     make(map[int64]domain.ImageItem),
		sessions:   make(map[int64]domain.QuizSession),
		answered:   make(map[int64]map[string]struct{}),
		activity:   make(map[int64][]domain.ActivityRecord),
	}
}

// Seed loads catalog content, assigning ids in order. It is a no-op when content exists.
func (s *Store) Seed(_ context.Context, questions []domain.Question, images []domain.ImageItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) > 0 || len(s.images) > 0 {
		return nil
	}
	for _, q := range questions {
		s.questionSeq++
		q.ID = s.questionSeq
		s.questions[q.ID] = q
	}
	for _, item := range images {
		s.imageSeq++
		item.ID = s.imageSeq
		item.Options = append([]string(nil), item.Options...)
		s.images[item.ID] = item
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, id int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) GetUsers(_ context.Context, ids []int64) (map[int64]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]domain.User, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByExternalID(_ context.Context, externalID int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername[user.Username]; ok {
		return domain.User{}, domain.ErrUsernameTaken
	}
	if user.ExternalID != nil {
		if _, ok := s.byExternal[*user.ExternalID]; ok {
			return domain.User{}, domain.ErrExternalIDTaken
		}
		ext := *user.ExternalID
		user.ExternalID = &ext
	}
	s.userSeq++
	user.ID = s.userSeq
	s.users[user.ID] = user
	s.byUsername[user.Username] = user.ID
	if user.ExternalID != nil {
		s.byExternal[*user.ExternalID] = user.ID
	}
	return user, nil
}

func (s *Store) GetStats(_ context.Context, userID int64) (domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[userID]
	if !ok {
		return domain.UserStats{}, domain.ErrStatsNotFound
	}
	return stats.Clone(), nil
}

func (s *Store) CreateStats(_ context.Context, stats domain.UserStats) (domain.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stats[stats.UserID]; ok {
		return domain.UserStats{}, domain.ErrConflict
	}
	stats = stats.Clone()
	s.stats[stats.UserID] = stats
	return stats.Clone(), nil
}

func (s *Store) UpdateStats(_ context.Context, userID int64, update func(*domain.UserStats)) (domain.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[userID]
	if !ok {
		stats = domain.NewUserStats(userID)
	}
	stats = stats.Clone()
	update(&stats)
	s.stats[userID] = stats
	return stats.Clone(), nil
}

func (s *Store) ListStats(_ context.Context) ([]domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) GetQuestion(_ context.Context, id int64) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (s *Store) GetImageItem(_ context.Context, id int64) (domain.ImageItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.images[id]
	if !ok {
		return domain.ImageItem{}, domain.ErrImageItemNotFound
	}
	item.Options = append([]string(nil), item.Options...)
	return item, nil
}

// ListQuestions filters by category and, when given, subcategory. Empty category matches all.
func (s *Store) ListQuestions(_ context.Context, category, subcategory string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Question{}
	for _, q := range s.questions {
		if category != "" && q.Category != category {
			continue
		}
		if subcategory != "" && q.Subcategory != subcategory {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListImageItems matches category against either the item's category or subcategory.
func (s *Store) ListImageItems(_ context.Context, category string) ([]domain.ImageItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ImageItem{}
	for _, item := range s.images {
		if category != "" && item.Category != category && item.Subcategory != category {
			continue
		}
		item.Options = append([]string(nil), item.Options...)
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AppendActivity(_ context.Context, record domain.ActivityRecord) (domain.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activitySeq++
	record.ID = s.activitySeq
	record.Details = copyDetails(record.Details)
	s.activity[record.UserID] = append(s.activity[record.UserID], record)
	return record, nil
}

func (s *Store) ListActivity(_ context.Context, userID int64, limit int) ([]domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.activity[userID]
	out := make([]domain.ActivityRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		r.Details = copyDetails(r.Details)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyDetails(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

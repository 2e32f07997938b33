package app_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"medquiz-service/internal/app"
	"medquiz-service/internal/domain"
)

func TestLeaderboardHubPushesAfterAnswers(t *testing.T) {
	f := newFixture(t)
	hub := app.NewLeaderboardHub(f.stats)
	f.engine = app.NewScoringEngine(f.store, f.store, f.sessions, f.store, hub)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go hub.Run(ctx)
	alice := f.register(t, "alice")

	updates, cancel, err := hub.Subscribe(ctx, "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := next(t, updates)
	if len(initial.Entries) != 1 || initial.Entries[0].TotalQuizzes != 0 {
		t.Fatalf("unexpected snapshot %+v", initial)
	}

	if _, err := f.engine.SubmitAnswer(ctx, alice.ID, 1, true); err != nil {
		t.Fatalf("submit: %v", err)
	}
	update := next(t, updates)
	if update.Entries[0].TotalQuizzes != 1 || update.Entries[0].Accuracy != 100 {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestLeaderboardHubDropsStaleSnapshots(t *testing.T) {
	f := newFixture(t)
	hub := app.NewLeaderboardHub(f.stats)
	ctx := context.Background()
	alice := f.register(t, "alice")

	updates, cancel, _ := hub.Subscribe(ctx, "")
	defer cancel()

	// nobody reads while twenty refreshes land; the buffer must not block the writer
	for i := 0; i < 20; i++ {
		if _, err := f.engine.SubmitAnswer(ctx, alice.ID, 1, i%2 == 0); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		hub.Refresh(ctx)
	}
	if n := len(updates); n != cap(updates) {
		t.Fatalf("expected a full buffer, got %d", n)
	}

	cancel()
	for range updates {
	}
}

// countingUsers counts user lookups made while ranking.
type countingUsers struct {
	app.UserRepository
	single, batch atomic.Int32
}

func (u *countingUsers) GetUser(ctx context.Context, id int64) (domain.User, error) {
	u.single.Add(1)
	return u.UserRepository.GetUser(ctx, id)
}

func (u *countingUsers) GetUsers(ctx context.Context, ids []int64) (map[int64]domain.User, error) {
	u.batch.Add(1)
	return u.UserRepository.GetUsers(ctx, ids)
}

type countingStats struct {
	app.StatsRepository
	lists atomic.Int32
}

func (s *countingStats) ListStats(ctx context.Context) ([]domain.UserStats, error) {
	s.lists.Add(1)
	return s.StatsRepository.ListStats(ctx)
}

func TestLeaderboardHubCoalescesBursts(t *testing.T) {
	f := newFixture(t)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	for _, name := range []string{"alice", "bob", "carol"} {
		user := f.register(t, name)
		if _, err := f.engine.SubmitAnswer(ctx, user.ID, 1, true); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	users := &countingUsers{UserRepository: f.store}
	stats := &countingStats{StatsRepository: f.store}
	hub := app.NewLeaderboardHub(app.NewStatsService(users, stats, f.store))

	var feeds []<-chan domain.Leaderboard
	for _, category := range []string{"", "Anatomy", "Physiology"} {
		updates, cancel, err := hub.Subscribe(ctx, category)
		if err != nil {
			t.Fatalf("subscribe %q: %v", category, err)
		}
		defer cancel()
		next(t, updates)
		feeds = append(feeds, updates)
	}
	stats.lists.Store(0)
	users.batch.Store(0)

	// without Run nothing drains the signal, so every call must return at once
	for i := 0; i < 50; i++ {
		_ = hub.ActivityRecorded(ctx, domain.ActivityRecord{UserID: 1, Kind: domain.ActivityQuizAnswer})
	}
	go hub.Run(ctx)
	for _, updates := range feeds {
		if lb := next(t, updates); len(lb.Entries) != 3 {
			t.Fatalf("expected three ranked users, got %+v", lb)
		}
	}

	if n := stats.lists.Load(); n != 1 {
		t.Fatalf("expected one stats read for the burst, got %d", n)
	}
	if n := users.batch.Load(); n != 1 {
		t.Fatalf("expected one batched user read, got %d", n)
	}
	if n := users.single.Load(); n != 0 {
		t.Fatalf("expected no per-row user lookups, got %d", n)
	}
}

func TestLeaderboardHubIgnoresTutorQuestions(t *testing.T) {
	f := newFixture(t)
	hub := app.NewLeaderboardHub(f.stats)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	updates, cancel, _ := hub.Subscribe(ctx, "")
	defer cancel()
	next(t, updates)

	_ = hub.ActivityRecorded(ctx, domain.ActivityRecord{UserID: 1, Kind: domain.ActivityAskAI})
	go hub.Run(ctx)
	select {
	case lb := <-updates:
		t.Fatalf("unexpected refresh %+v", lb)
	case <-time.After(100 * time.Millisecond):
	}
}

func next(t *testing.T, ch <-chan domain.Leaderboard) domain.Leaderboard {
	t.Helper()
	select {
	case lb, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return lb
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for leaderboard")
	}
	return domain.Leaderboard{}
}

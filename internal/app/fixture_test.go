package app_test

import (
	"context"
	"testing"
	"time"

	"medquiz-service/internal/app"
	"medquiz-service/internal/domain"
	"medquiz-service/internal/infra/memory"
)

type fixture struct {
	store    *memory.Store
	tokens   *memory.TokenStore
	sessions *app.SessionManager
	engine   *app.ScoringEngine
	accounts *app.AccountService
	stats    *app.StatsService
	hs       *app.HandshakeCoordinator
	now      time.Time
}

func newFixture(t *testing.T, sinks ...app.ActivitySink) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		now:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	err := f.store.Seed(context.Background(), []domain.Question{
		{Prompt: "The heart has four chambers.", Answer: true, Explanation: "Two atria, two ventricles.", Category: "Anatomy", Subcategory: "Thorax"},
		{Prompt: "The left lung has three lobes.", Answer: false, Category: "Anatomy", Subcategory: "Thorax"},
		{Prompt: "Insulin lowers blood glucose.", Answer: true, Explanation: "It promotes uptake.", Category: "Physiology", Subcategory: "Endocrine"},
		{Prompt: "Cells have membranes.", Answer: true, Category: "Physiology"},
	}, []domain.ImageItem{
		{Category: "Anatomy", Subcategory: "Thorax", ImageURL: "/img/1.png", CorrectAnswer: "Aorta", Options: []string{"Aorta", "Vena cava", "Trachea"}, Explanation: "Largest artery."},
		{Category: "Anatomy", Subcategory: "Abdomen", ImageURL: "/img/2.png", CorrectAnswer: "Liver", Options: []string{"Liver", "Spleen"}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	f.tokens = memory.NewTokenStoreWithClock(clock)
	f.sessions = app.NewSessionManagerWithClock(f.store, clock)
	f.engine = app.NewScoringEngine(f.store, f.store, f.sessions, f.store, sinks...).WithClock(clock)
	f.accounts = app.NewAccountService(f.store, f.store, 4)
	f.stats = app.NewStatsService(f.store, f.store, f.store)
	f.hs = app.NewHandshakeCoordinatorWithClock(f.accounts, f.tokens, app.HandshakeConfig{
		BotName:       "MedQuizBot",
		PublicBaseURL: "https://quiz.example.com/",
	}, clock)
	return f
}

func (f *fixture) register(t *testing.T, username string) domain.User {
	t.Helper()
	user, err := f.accounts.Register(context.Background(), app.RegisterInput{Username: username, Password: "pw-" + username, FirstName: username})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}

func (f *fixture) statsOf(t *testing.T, userID int64) domain.UserStats {
	t.Helper()
	st, err := f.store.GetStats(context.Background(), userID)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	return st
}

// recordingSink captures activity notifications.
type recordingSink struct {
	records []domain.ActivityRecord
}

func (s *recordingSink) ActivityRecorded(_ context.Context, r domain.ActivityRecord) error {
	s.records = append(s.records, r)
	return nil
}

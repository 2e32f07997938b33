package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"medquiz-service/internal/domain"
)

func TestItemCacheCaches(t *testing.T) {
	store := NewStore()
	if err := store.Seed(context.Background(), []domain.Question{sampleQuestion()}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	loader := &countingLoader{Store: store}
	cache := NewItemCache(loader, time.Minute)

	if _, err := cache.GetQuestion(context.Background(), 1); err != nil {
		t.Fatalf("get question: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	q, err := cache.GetQuestion(context.Background(), 1)
	if err != nil {
		t.Fatalf("get question 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
	if q.Prompt != "The heart has four chambers." {
		t.Fatalf("unexpected question %+v", q)
	}
}

func TestItemCacheExpires(t *testing.T) {
	store := NewStore()
	_ = store.Seed(context.Background(), []domain.Question{sampleQuestion()}, nil)
	loader := &countingLoader{Store: store}
	cache := NewItemCache(loader, time.Minute)

	now := time.Now()
	cache.clock = func() time.Time { return now }
	if _, err := cache.GetQuestion(context.Background(), 1); err != nil {
		t.Fatalf("get question: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cache.GetQuestion(context.Background(), 1); err != nil {
		t.Fatalf("get question after expiry: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after expiry, got %d calls", loader.calls.Load())
	}
}

func TestItemCacheDoesNotCacheMisses(t *testing.T) {
	loader := &countingLoader{Store: NewStore()}
	cache := NewItemCache(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetImageItem(context.Background(), 9); !errors.Is(err, domain.ErrImageItemNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected misses to reach the loader, got %d", loader.calls.Load())
	}
}

type countingLoader struct {
	*Store
	calls atomic.Int32
}

func (l *countingLoader) GetQuestion(ctx context.Context, id int64) (domain.Question, error) {
	l.calls.Add(1)
	return l.Store.GetQuestion(ctx, id)
}

func (l *countingLoader) GetImageItem(ctx context.Context, id int64) (domain.ImageItem, error) {
	l.calls.Add(1)
	return l.Store.GetImageItem(ctx, id)
}

func sampleQuestion() domain.Question {
	return domain.Question{
		Prompt:      "The heart has four chambers.",
		Answer:      true,
		Explanation: "Two atria and two ventricles.",
		Category:    "Anatomy",
		Subcategory: "Thorax",
	}
}

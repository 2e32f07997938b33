package cli

import (
	"context"
	"testing"

	"medquiz-service/internal/app"
	"medquiz-service/internal/infra/memory"
)

func TestDemoContentCoversEveryTopic(t *testing.T) {
	cats := app.DefaultCategories()
	questions, images := demoContent(cats)

	topics := 0
	for _, c := range cats {
		topics += len(c.Subcategories)
	}
	if len(questions) != topics*demoQuestionsPerTopic {
		t.Fatalf("expected %d questions, got %d", topics*demoQuestionsPerTopic, len(questions))
	}
	if len(images) != len(demoImageTopics)*3 {
		t.Fatalf("expected %d images, got %d", len(demoImageTopics)*3, len(images))
	}
	for _, img := range images {
		if img.Options[0] != img.CorrectAnswer || len(img.Options) != 4 {
			t.Fatalf("unexpected options %v for %q", img.Options, img.CorrectAnswer)
		}
	}
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for i := 0; i < 2; i++ {
		if err := seedDemo(ctx, store, app.DefaultCategories()); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	items, err := store.ListImageItems(ctx, "Thorax")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 thorax images after reseeding, got %d", len(items))
	}
}

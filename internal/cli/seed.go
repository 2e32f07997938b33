package cli

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"medquiz-service/internal/domain"
)

const demoQuestionsPerTopic = 5

var demoImageTopics = []string{"Head and Neck", "Thorax", "Abdomen", "Neuroanatomy"}

// seeder is implemented by the memory and postgres stores; both skip seeding when content exists.
type seeder interface {
	Seed(ctx context.Context, questions []domain.Question, images []domain.ImageItem) error
}

func seedDemo(ctx context.Context, s seeder, categories []domain.Category) error {
	questions, images := demoContent(categories)
	if err := s.Seed(ctx, questions, images); err != nil {
		return fmt.Errorf("seed demo content: %w", err)
	}
	log.Printf("seed: demo content ready (%d questions, %d images)", len(questions), len(images))
	return nil
}

// demoContent is placeholder content so a fresh install has something to quiz on.
func demoContent(categories []domain.Category) ([]domain.Question, []domain.ImageItem) {
	var questions []domain.Question
	for _, c := range categories {
		for _, sub := range c.Subcategories {
			for i := 1; i <= demoQuestionsPerTopic; i++ {
				questions = append(questions, domain.Question{
					Prompt:      fmt.Sprintf("Sample %s %s question %d", c.Name, sub, i),
					Answer:      i%2 == 1,
					Explanation: fmt.Sprintf("This is an explanation for the %s %s question %d", c.Name, sub, i),
					Category:    c.Name,
					Subcategory: sub,
				})
			}
		}
	}

	var images []domain.ImageItem
	for _, topic := range demoImageTopics {
		for i := 1; i <= 3; i++ {
			images = append(images, domain.ImageItem{
				Category:      "Anatomy",
				Subcategory:   topic,
				ImageURL:      "https://via.placeholder.com/500x300?text=" + url.QueryEscape(fmt.Sprintf("%s Image %d", topic, i)),
				CorrectAnswer: structure(i),
				Options:       []string{structure(i), structure(i + 1), structure(i + 2), structure(i + 3)},
				Explanation:   fmt.Sprintf("This is an explanation for the %s structure %d", topic, i),
			})
		}
	}
	return questions, images
}

func structure(n int) string {
	return fmt.Sprintf("Structure %d", n)
}

package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"medquiz-service/internal/domain"
)

// AllCategories disables the category filter when listing questions.
const AllCategories = "All Categories"

// DefaultCategories is the catalog served when configuration does not override it.
func DefaultCategories() []domain.Category {
	return []domain.Category{
		{Name: "Anatomy", Subcategories: []string{"Head and Neck", "Upper Limb", "Thorax", "Lower Limb", "Pelvis and Perineum", "Neuroanatomy", "Abdomen"}},
		{Name: "Physiology", Subcategories: []string{"Cell", "Nerve and Muscle", "Blood", "Endocrine", "Reproductive", "Gastrointestinal Tract", "Renal", "Cardiovascular System", "Respiration", "Medical Genetics", "Neurophysiology"}},
	}
}

// Catalog serves browsable quiz content in random order.
type Catalog struct {
	repo       CatalogRepository
	categories []domain.Category

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCatalog(repo CatalogRepository, categories []domain.Category) *Catalog {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	return &Catalog{
		repo:       repo,
		categories: categories,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Catalog) Categories() []domain.Category {
	out := make([]domain.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// ListQuestions returns shuffled questions. limit <= 0 returns all matches.
func (c *Catalog) ListQuestions(ctx context.Context, category, subcategory string, limit int) ([]domain.Question, error) {
	if category == "" {
		return nil, domain.ErrMissingCategory
	}
	if category == AllCategories {
		category, subcategory = "", ""
	}
	questions, err := c.repo.ListQuestions(ctx, category, subcategory)
	if err != nil {
		return nil, domain.Internal("list questions", err)
	}
	c.mu.Lock()
	c.rnd.Shuffle(len(questions), func(i, j int) { questions[i], questions[j] = questions[j], questions[i] })
	c.mu.Unlock()
	return truncate(questions, limit), nil
}

// ListImageItems returns shuffled image items whose category or subcategory matches.
func (c *Catalog) ListImageItems(ctx context.Context, category string, limit int) ([]domain.ImageItem, error) {
	items, err := c.repo.ListImageItems(ctx, category)
	if err != nil {
		return nil, domain.Internal("list image items", err)
	}
	c.mu.Lock()
	c.rnd.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	c.mu.Unlock()
	return truncate(items, limit), nil
}

// ImageCategories lists distinct image groupings, subcategory first, in catalog order.
func (c *Catalog) ImageCategories(ctx context.Context) ([]string, error) {
	items, err := c.repo.ListImageItems(ctx, "")
	if err != nil {
		return nil, domain.Internal("list image items", err)
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, item := range items {
		name := item.Subcategory
		if name == "" {
			name = item.Category
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

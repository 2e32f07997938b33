package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"medquiz-service/internal/domain"
)

const (
	questionColumns = `id, prompt, answer, explanation, category, subcategory`
	imageColumns    = `id, category, subcategory, image_url, correct_answer, options, explanation`
)

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	err := row.Scan(&q.ID, &q.Prompt, &q.Answer, &q.Explanation, &q.Category, &q.Subcategory)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("scan question: %w", err)
	}
	return q, nil
}

func scanImage(row pgx.Row) (domain.ImageItem, error) {
	var item domain.ImageItem
	err := row.Scan(&item.ID, &item.Category, &item.Subcategory, &item.ImageURL, &item.CorrectAnswer, &item.Options, &item.Explanation)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ImageItem{}, domain.ErrImageItemNotFound
	}
	if err != nil {
		return domain.ImageItem{}, fmt.Errorf("scan image item: %w", err)
	}
	return item, nil
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (domain.Question, error) {
	return scanQuestion(s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, id))
}

func (s *Store) GetImageItem(ctx context.Context, id int64) (domain.ImageItem, error) {
	return scanImage(s.pool.QueryRow(ctx, `SELECT `+imageColumns+` FROM image_items WHERE id=$1`, id))
}

func (s *Store) ListQuestions(ctx context.Context, category, subcategory string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE ($1 = '' OR category = $1) AND ($2 = '' OR subcategory = $2)
		 ORDER BY id`, category, subcategory)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	out := []domain.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) ListImageItems(ctx context.Context, category string) ([]domain.ImageItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+imageColumns+` FROM image_items
		 WHERE ($1 = '' OR category = $1 OR subcategory = $1)
		 ORDER BY id`, category)
	if err != nil {
		return nil, fmt.Errorf("list image items: %w", err)
	}
	defer rows.Close()
	out := []domain.ImageItem{}
	for rows.Next() {
		item, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Seed inserts catalog content when both content tables are empty.
func (s *Store) Seed(ctx context.Context, questions []domain.Question, images []domain.ImageItem) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var existing int
		err := tx.QueryRow(ctx, `SELECT (SELECT count(*) FROM questions) + (SELECT count(*) FROM image_items)`).Scan(&existing)
		if err != nil {
			return fmt.Errorf("count content: %w", err)
		}
		if existing > 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, q := range questions {
			batch.Queue(`INSERT INTO questions (prompt, answer, explanation, category, subcategory) VALUES ($1, $2, $3, $4, $5)`,
				q.Prompt, q.Answer, q.Explanation, q.Category, q.Subcategory)
		}
		for _, item := range images {
			options := item.Options
			if options == nil {
				options = []string{}
			}
			batch.Queue(`INSERT INTO image_items (category, subcategory, image_url, correct_answer, options, explanation) VALUES ($1, $2, $3, $4, $5, $6)`,
				item.Category, item.Subcategory, item.ImageURL, item.CorrectAnswer, options, item.Explanation)
		}
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("seed content: %w", err)
			}
		}
		return results.Close()
	})
}

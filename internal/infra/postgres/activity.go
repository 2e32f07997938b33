package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"medquiz-service/internal/domain"
)

func (s *Store) AppendActivity(ctx context.Context, record domain.ActivityRecord) (domain.ActivityRecord, error) {
	details := []byte("{}")
	if record.Details != nil {
		raw, err := json.Marshal(record.Details)
		if err != nil {
			return domain.ActivityRecord{}, fmt.Errorf("marshal details: %w", err)
		}
		details = raw
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_activity (user_id, activity_type, category, subcategory, result, score, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8) RETURNING id`,
		record.UserID, string(record.Kind), record.Category, record.Subcategory, string(record.Result), record.Score,
		string(details), record.Timestamp,
	).Scan(&record.ID)
	if err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("insert activity: %w", err)
	}
	return record, nil
}

// ListActivity returns newest first; limit <= 0 means no limit.
func (s *Store) ListActivity(ctx context.Context, userID int64, limit int) ([]domain.ActivityRecord, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, activity_type, category, subcategory, result, score, details, created_at
		 FROM user_activity WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, lim)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []domain.ActivityRecord{}
	for rows.Next() {
		var (
			r            domain.ActivityRecord
			kind, result string
			raw          []byte
		)
		if err := rows.Scan(&r.ID, &r.UserID, &kind, &r.Category, &r.Subcategory, &result, &r.Score, &raw, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		r.Kind = domain.ActivityKind(kind)
		r.Result = domain.ActivityResult(result)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &r.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

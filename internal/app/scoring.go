package app

import (
	"context"
	"log"
	"strconv"
	"time"

	"medquiz-service/internal/domain"
)

const noExplanation = "No explanation available"

// ScoringEngine grades answers and folds them into user stats, session progress and the activity log.
// It keeps no state between calls.
type ScoringEngine struct {
	items    ItemRepository
	stats    StatsRepository
	sessions *SessionManager
	activity ActivityRepository
	sinks    []ActivitySink
	now      func() time.Time
}

func NewScoringEngine(items ItemRepository, stats StatsRepository, sessions *SessionManager, activity ActivityRepository, sinks ...ActivitySink) *ScoringEngine {
	return &ScoringEngine{
		items:    items,
		stats:    stats,
		sessions: sessions,
		activity: activity,
		sinks:    sinks,
		now:      time.Now,
	}
}

// WithClock is test-only for deterministic dates.
func (e *ScoringEngine) WithClock(now func() time.Time) *ScoringEngine {
	e.now = now
	return e
}

// graded is the item-independent view of one answer.
type graded struct {
	kind          domain.ActivityKind
	itemKey       string
	categoryKey   string
	category      string
	subcategory   string
	correct       bool
	explanation   string
	correctAnswer any
	details       map[string]any
}

// SubmitAnswer scores a true/false answer.
func (e *ScoringEngine) SubmitAnswer(ctx context.Context, userID, questionID int64, answer bool) (domain.Verdict, error) {
	if userID <= 0 {
		return domain.Verdict{}, domain.ErrNotLoggedIn
	}
	question, err := e.items.GetQuestion(ctx, questionID)
	if err != nil {
		return domain.Verdict{}, err
	}

	return e.apply(ctx, userID, graded{
		kind:          domain.ActivityQuizAnswer,
		itemKey:       "q:" + strconv.FormatInt(question.ID, 10),
		categoryKey:   question.CategoryKey(),
		category:      question.Category,
		subcategory:   question.Subcategory,
		correct:       answer == question.Answer,
		explanation:   question.Explanation,
		correctAnswer: question.Answer,
		details: map[string]any{
			"questionId":    question.ID,
			"userAnswer":    answer,
			"correctAnswer": question.Answer,
		},
	})
}

// SubmitImageAnswer scores an image-identification answer. Matching is exact and case-sensitive.
func (e *ScoringEngine) SubmitImageAnswer(ctx context.Context, userID, itemID int64, answer string) (domain.Verdict, error) {
	if userID <= 0 {
		return domain.Verdict{}, domain.ErrNotLoggedIn
	}
	item, err := e.items.GetImageItem(ctx, itemID)
	if err != nil {
		return domain.Verdict{}, err
	}

	return e.apply(ctx, userID, graded{
		kind:          domain.ActivityImageAnswer,
		itemKey:       "i:" + strconv.FormatInt(item.ID, 10),
		categoryKey:   item.CategoryKey(),
		category:      item.Category,
		subcategory:   item.Subcategory,
		correct:       answer == item.CorrectAnswer,
		explanation:   item.Explanation,
		correctAnswer: item.CorrectAnswer,
		details: map[string]any{
			"imageId":       item.ID,
			"userAnswer":    answer,
			"correctAnswer": item.CorrectAnswer,
		},
	})
}

func (e *ScoringEngine) apply(ctx context.Context, userID int64, g graded) (domain.Verdict, error) {
	session, inSession, err := e.sessions.GetActiveSession(ctx, userID)
	if err != nil {
		log.Printf("scoring: active session lookup for user %d: %v", userID, err)
		inSession = false
	}
	if inSession {
		first, err := e.sessions.MarkAnswered(ctx, session.ID, g.itemKey)
		if err != nil {
			return domain.Verdict{}, domain.Internal("mark answered", err)
		}
		if !first {
			return domain.Verdict{}, domain.ErrDuplicateAnswer
		}
	}

	today := e.now().UTC().Format("2006-01-02")
	stats, err := e.stats.UpdateStats(ctx, userID, func(s *domain.UserStats) {
		s.RecordAnswer(g.categoryKey, g.correct, today)
	})
	if err != nil {
		if inSession {
			if uerr := e.sessions.UnmarkAnswered(ctx, session.ID, g.itemKey); uerr != nil {
				log.Printf("scoring: release %s in session %d: %v", g.itemKey, session.ID, uerr)
			}
		}
		return domain.Verdict{}, domain.Internal("update stats", err)
	}

	if inSession {
		if _, err := e.sessions.RecordProgress(ctx, session.ID); err != nil {
			log.Printf("scoring: record progress for session %d: %v", session.ID, err)
		}
	}

	result, score := domain.ResultFailure, 0
	if g.correct {
		result, score = domain.ResultSuccess, 1
	}
	g.details["streak"] = stats.Streak
	record, err := e.activity.AppendActivity(ctx, domain.ActivityRecord{
		UserID:      userID,
		Kind:        g.kind,
		Category:    g.category,
		Subcategory: g.subcategory,
		Result:      result,
		Score:       score,
		Details:     g.details,
		Timestamp:   e.now(),
	})
	// The answer is already counted, so a lost activity row must not fail the submit.
	if err != nil {
		log.Printf("scoring: append activity for user %d: %v", userID, err)
	} else {
		notifySinks(ctx, e.sinks, record)
	}

	explanation := g.explanation
	if explanation == "" {
		explanation = noExplanation
	}
	return domain.Verdict{
		IsCorrect:     g.correct,
		Explanation:   explanation,
		CorrectAnswer: g.correctAnswer,
	}, nil
}

func notifySinks(ctx context.Context, sinks []ActivitySink, record domain.ActivityRecord) {
	for _, sink := range sinks {
		if err := sink.ActivityRecorded(ctx, record); err != nil {
			log.Printf("activity sink %T: %v", sink, err)
		}
	}
}

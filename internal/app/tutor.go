package app

import (
	"context"
	"log"
	"strings"
	"time"

	"medquiz-service/internal/domain"
)

// TutorFallback is returned whenever the model cannot answer.
const TutorFallback = "I'm sorry, I'm having trouble processing your question right now. Please try again later."

// DefaultTutorTimeout bounds a single model call.
const DefaultTutorTimeout = 20 * time.Second

// TutorModel is an opaque text-in/text-out answerer.
type TutorModel interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Tutor answers free-form study questions. Model failures never reach the caller.
type Tutor struct {
	model    TutorModel
	activity ActivityRepository
	sinks    []ActivitySink
	timeout  time.Duration
	now      func() time.Time
}

func NewTutor(model TutorModel, activity ActivityRepository, timeout time.Duration, sinks ...ActivitySink) *Tutor {
	if timeout <= 0 {
		timeout = DefaultTutorTimeout
	}
	return &Tutor{model: model, activity: activity, sinks: sinks, timeout: timeout, now: time.Now}
}

// Ask answers question. userID <= 0 skips the activity record.
func (t *Tutor) Ask(ctx context.Context, userID int64, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", domain.ErrMissingQuestion
	}

	answer := t.answer(ctx, question)

	if userID > 0 {
		record, err := t.activity.AppendActivity(ctx, domain.ActivityRecord{
			UserID:    userID,
			Kind:      domain.ActivityAskAI,
			Details:   map[string]any{"question": question, "response": answer},
			Timestamp: t.now(),
		})
		if err != nil {
			log.Printf("tutor: record activity for user %d: %v", userID, err)
		} else {
			notifySinks(ctx, t.sinks, record)
		}
	}
	return answer, nil
}

func (t *Tutor) answer(ctx context.Context, question string) string {
	if t.model == nil {
		return TutorFallback
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	answer, err := t.model.Answer(ctx, question)
	if err != nil {
		log.Printf("tutor: model call failed: %v", err)
		return TutorFallback
	}
	if strings.TrimSpace(answer) == "" {
		return TutorFallback
	}
	return answer
}

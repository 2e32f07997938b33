// Package amqp publishes activity events to RabbitMQ. Publishing is best-effort:
// failures are returned to the caller, which logs and moves on.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"medquiz-service/internal/domain"
)

const DefaultQueue = "quiz.activity"

// ActivityEvent is the message body published for every activity record.
type ActivityEvent struct {
	MessageID   string         `json:"messageId"`
	RecordID    int64          `json:"recordId"`
	UserID      int64          `json:"userId"`
	Kind        string         `json:"activityType"`
	Category    string         `json:"category,omitempty"`
	Subcategory string         `json:"subcategory,omitempty"`
	Result      string         `json:"result,omitempty"`
	Score       int            `json:"score"`
	Details     map[string]any `json:"details,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// NewActivityEvent converts a record into its wire form.
func NewActivityEvent(record domain.ActivityRecord) ActivityEvent {
	return ActivityEvent{
		MessageID:   uuid.NewString(),
		RecordID:    record.ID,
		UserID:      record.UserID,
		Kind:        string(record.Kind),
		Category:    record.Category,
		Subcategory: record.Subcategory,
		Result:      string(record.Result),
		Score:       record.Score,
		Details:     record.Details,
		OccurredAt:  record.Timestamp.UTC(),
	}
}

// Publisher keeps one connection open and redials after a failure. It implements app.ActivitySink.
type Publisher struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{url: url, queue: queue}
}

func (p *Publisher) ActivityRecorded(ctx context.Context, record domain.ActivityRecord) error {
	event := NewActivityEvent(record)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal activity event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.MessageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("publish activity: %w", err)
	}
	return nil
}

func (p *Publisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	// durable so events survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	log.Printf("amqp: publishing activity to %q", p.queue)
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

// Package events publishes task lifecycle events to Kafka for
// downstream analytics (leaderboards, project dashboards). The stream
// is an observer of the lifecycle, never an input to it: a publish
// failure is logged by the caller and does not affect task state.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Topic carries every lifecycle event, keyed by task id so per-task
// ordering is preserved.
const Topic = "taskman.task-events"

// Event kinds.
const (
	KindCreated   = "task.created"
	KindAccepted  = "task.accepted"
	KindCompleted = "task.completed"
	KindReleased  = "task.released"
)

// Event is one lifecycle transition.
type Event struct {
	Kind          string    `json:"kind"`
	TaskID        string    `json:"task_id"`
	TaskType      string    `json:"task_type"`
	UserID        string    `json:"user_id,omitempty"`
	TokensAwarded int       `json:"tokens_awarded,omitempty"`
	Cause         string    `json:"cause,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a Publisher backed by the given brokers.
func NewKafkaPublisher(brokers []string) Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{}, // route by key → deterministic partition
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &kafkaPublisher{writer: w}
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s for task %s: %w", ev.Kind, ev.TaskID, err)
	}

	// Inject the active trace context so consumers can continue the trace.
	headers := make(headerCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.TaskID),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    ev.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s for task %s: %w", ev.Kind, ev.TaskID, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards all events. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

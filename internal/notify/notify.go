// Package notify publishes finished job outcomes to other systems.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/frontier-design/projectory-web-to-print/internal/config"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

// Publisher announces job outcomes. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishJobOutcome(ctx context.Context, rec *models.JobRecord) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per finished job, keyed by job ID.
type KafkaPublisher struct {
	w     messageWriter
	topic string
}

// NewKafkaPublisher creates a KafkaPublisher for cfg.Brokers and cfg.Topic.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
	}, cfg.Topic)
}

func newKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: w, topic: topic}
}

// EventName is the value of the "event" header for a job status.
func EventName(status string) string {
	return "pdf.job." + status
}

func (p *KafkaPublisher) PublishJobOutcome(ctx context.Context, rec *models.JobRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job outcome: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.JobID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(EventName(rec.Status))},
		},
	})
	if err != nil {
		return fmt.Errorf("write job outcome to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Nop discards every outcome.
type Nop struct{}

func (Nop) PublishJobOutcome(context.Context, *models.JobRecord) error { return nil }
func (Nop) Close() error                                               { return nil }

// Compile-time checks.
var (
	_ Publisher     = (*KafkaPublisher)(nil)
	_ Publisher     = Nop{}
	_ messageWriter = (*kafka.Writer)(nil)
)

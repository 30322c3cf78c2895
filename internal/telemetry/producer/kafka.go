package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"praxis-pilot/backend/internal/telemetry/domain"
)

const writeTimeout = 5 * time.Second

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes events as JSON to one topic.
type KafkaProducer struct {
	w messageWriter
}

// NewKafkaProducer returns a producer for topic, or nil when brokers or topic are empty
// so telemetry stays off. Messages are keyed by tenant so a tenant's events keep their
// order within a partition.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaProducer{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

// Message builds the Kafka message for event.
func Message(event *domain.Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("producer: encode %s: %w", event.EventType, err)
	}
	msg := kafka.Message{
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.EventType)},
			{Key: HeaderSource, Value: []byte(event.Source)},
		},
		Time: event.CreatedAt,
	}
	if event.TenantID != "" {
		msg.Key = []byte(event.TenantID)
	}
	return msg, nil
}

// Emit publishes event. A nil producer or event is a no-op.
func (p *KafkaProducer) Emit(ctx context.Context, event *domain.Event) error {
	if p == nil || p.w == nil || event == nil {
		return nil
	}
	msg, err := Message(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("producer: write %s: %w", event.EventType, err)
	}
	return nil
}

// Close flushes and closes the writer. Nil-safe.
func (p *KafkaProducer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/mindmed/mindmed-api/internal/models"
)

const DefaultTopic = "mindmed-events"

type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// KafkaPublisher writes events to a topic keyed by user id, so the events
// of one user stay in order on a single partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.UserID),
		Value: sarama.StringEncoder(eventBytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(event.Type)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	slog.Debug("Event published", "type", event.Type, "partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops events. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.Event) error { return nil }

// Decode parses a message produced by KafkaPublisher.
func Decode(value []byte) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return models.Event{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if event.Type == "" {
		return models.Event{}, fmt.Errorf("event has no type")
	}
	return event, nil
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"marketplace-settlement/internal/config"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventPublisher streams domain events (notifications) to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
	Close() error
}

type kafkaPublisherImpl struct {
	writer *kafka.Writer
}

// NewEventPublisher returns a no-op publisher when no brokers are configured.
func NewEventPublisher(cfg *config.Kafka) EventPublisher {
	if len(cfg.Brokers) == 0 {
		return noopPublisher{}
	}

	return &kafkaPublisherImpl{writer: newKafkaWriter(cfg)}
}

func newKafkaWriter(cfg *config.Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		// One message per notification; the 1s default would hold every request.
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

func (p *kafkaPublisherImpl) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		return fmt.Errorf("kafka: write message: %w", err)
	}
	return nil
}

func (p *kafkaPublisherImpl) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }
func (noopPublisher) Close() error                               { return nil }

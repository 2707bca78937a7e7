package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/outbox"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const writeTimeout = 10 * time.Second

// Producer publishes outbox entries to a Kafka topic, keyed by aggregate id
// so that events of one payment stay ordered within a partition.
type Producer struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewProducer creates a synchronous writer. Publish returns only after the
// brokers acknowledged the message, which the outbox relay relies on.
func NewProducer(brokers []string, topic string, logger zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error().Msgf(msg, args...)
		}),
	}
	return &Producer{writer: writer, logger: logger}
}

// Publish writes one entry. The event type travels as a header.
func (p *Producer) Publish(ctx context.Context, entry *outbox.Entry) error {
	value, err := json.Marshal(entry.Message())
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	produceCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(produceCtx, kafka.Message{
		Key:   []byte(entry.AggregateID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(entry.EventType)},
			{Key: "event_id", Value: []byte(entry.ID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to produce message to Kafka: %w", err)
	}
	p.logger.Debug().Str("event_type", entry.EventType).Str("aggregate_id", entry.AggregateID.String()).Msg("change event produced")
	return nil
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

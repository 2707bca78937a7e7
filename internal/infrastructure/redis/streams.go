package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cassiomorais/sokopay/internal/domain/outbox"
	"github.com/redis/go-redis/v9"
)

const (
	ChangeFeedStream = "payments:changes"
	DLQStream        = "payments:changes:dlq"

	// Streams are trimmed approximately to this many entries.
	defaultMaxLen = 100_000
)

// StreamProducer publishes outbox entries to a Redis stream that UI
// subscribers tail for refresh notifications.
type StreamProducer struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewStreamProducer(client redis.Cmdable, stream string) *StreamProducer {
	if stream == "" {
		stream = ChangeFeedStream
	}
	return &StreamProducer{client: client, stream: stream, maxLen: defaultMaxLen}
}

// Publish appends one entry to the change feed.
func (p *StreamProducer) Publish(ctx context.Context, entry *outbox.Entry) error {
	return p.add(ctx, p.stream, entry, "")
}

// PublishToDLQ parks an entry that exhausted its publish attempts.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, entry *outbox.Entry, reason string) error {
	return p.add(ctx, DLQStream, entry, reason)
}

func (p *StreamProducer) add(ctx context.Context, stream string, entry *outbox.Entry, reason string) error {
	payload, err := json.Marshal(entry.Message())
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	values := map[string]any{
		"event_id":       entry.ID.String(),
		"aggregate_type": entry.AggregateType,
		"aggregate_id":   entry.AggregateID.String(),
		"event_type":     entry.EventType,
		"payload":        string(payload),
	}
	if reason != "" {
		values["reason"] = reason
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (p *StreamProducer) Close() error { return nil }

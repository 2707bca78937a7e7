package service

import (
	"context"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/outbox"
	"github.com/cassiomorais/sokopay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// DeadLetterPublisher parks entries that used up their publish attempts.
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, entry *outbox.Entry, reason string) error
}

// OutboxRelay moves pending outbox entries onto the change feed.
type OutboxRelay struct {
	outboxRepo outbox.Repository
	txManager  TransactionManager
	publisher  Publisher
	dlq        DeadLetterPublisher
	batchSize  int
	stream     string
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewOutboxRelay creates a relay. dlq and metrics may be nil.
func NewOutboxRelay(
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	publisher Publisher,
	dlq DeadLetterPublisher,
	batchSize int,
	stream string,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &OutboxRelay{
		outboxRepo: outboxRepo,
		txManager:  txManager,
		publisher:  publisher,
		dlq:        dlq,
		batchSize:  batchSize,
		stream:     stream,
		metrics:    metrics,
		logger:     observability.Component(logger, "outbox_relay"),
	}
}

// RunOnce publishes one batch. The batch rows stay locked for the duration of
// the transaction so concurrent relays never publish the same entry twice.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.outboxRepo.GetPending(txCtx, r.batchSize)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			start := time.Now()
			if err := r.publisher.Publish(txCtx, entry); err != nil {
				r.logger.Warn().Err(err).
					Str("outbox_id", entry.ID.String()).
					Str("event_type", entry.EventType).
					Int("retry_count", entry.RetryCount).
					Msg("failed to publish change event")
				if err := r.outboxRepo.MarkFailed(txCtx, entry.ID); err != nil {
					return err
				}
				r.observe("failed", start)
				r.deadLetter(txCtx, entry, err)
				continue
			}

			if err := r.outboxRepo.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			r.observe("published", start)
			published++
		}
		return nil
	})
	return published, err
}

func (r *OutboxRelay) deadLetter(ctx context.Context, entry *outbox.Entry, cause error) {
	entry.RetryCount++
	if !entry.Exhausted() || r.dlq == nil {
		return
	}
	if err := r.dlq.PublishToDLQ(ctx, entry, cause.Error()); err != nil {
		r.logger.Error().Err(err).Str("outbox_id", entry.ID.String()).Msg("failed to dead-letter change event")
		return
	}
	r.logger.Error().Str("outbox_id", entry.ID.String()).Str("event_type", entry.EventType).
		Msg("change event dead-lettered after exhausting retries")
}

func (r *OutboxRelay) observe(status string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.WorkerMessagesProcessed.WithLabelValues(r.stream, status).Inc()
	r.metrics.WorkerProcessingDuration.WithLabelValues(r.stream).Observe(time.Since(start).Seconds())
}

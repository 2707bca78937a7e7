package service

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/callback"
	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/internal/domain/escrow"
	"github.com/cassiomorais/sokopay/internal/domain/outbox"
	"github.com/cassiomorais/sokopay/internal/domain/payment"
	"github.com/cassiomorais/sokopay/internal/domain/subscription"
	"github.com/cassiomorais/sokopay/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ReplayConfig controls the unprocessed-callback reconciler.
type ReplayConfig struct {
	MinAge    time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// CallbackService ingests gateway result callbacks and reconciles them onto
// payments and the entities they fund.
type CallbackService struct {
	auditRepo        callback.Repository
	paymentRepo      payment.Repository
	escrowRepo       escrow.Repository
	subscriptionRepo subscription.Repository
	outboxRepo       outbox.Repository
	txManager        TransactionManager
	locker           Locker
	replay           ReplayConfig
	metrics          *observability.Metrics
	logger           zerolog.Logger
}

// NewCallbackService creates a new CallbackService. metrics may be nil.
func NewCallbackService(
	auditRepo callback.Repository,
	paymentRepo payment.Repository,
	escrowRepo escrow.Repository,
	subscriptionRepo subscription.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	locker Locker,
	replay ReplayConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CallbackService {
	if replay.BatchSize <= 0 {
		replay.BatchSize = 50
	}
	if replay.LockTTL <= 0 {
		replay.LockTTL = 30 * time.Second
	}
	return &CallbackService{
		auditRepo:        auditRepo,
		paymentRepo:      paymentRepo,
		escrowRepo:       escrowRepo,
		subscriptionRepo: subscriptionRepo,
		outboxRepo:       outboxRepo,
		txManager:        txManager,
		locker:           locker,
		replay:           replay,
		metrics:          metrics,
		logger:           observability.Component(logger, "callback_service"),
	}
}

// Handle stores the raw delivery before anything else, then interprets and
// applies it. A returned error means the delivery was recorded but not
// reconciled; the audit row stays unprocessed for replay.
func (s *CallbackService) Handle(ctx context.Context, body []byte, headers map[string]string) (*HandleResult, error) {
	start := time.Now()
	ctx, span := observability.Tracer("callback_service").Start(ctx, "callback.handle")
	defer span.End()

	audit := callback.NewAudit(body, headers)
	span.SetAttributes(attribute.String("callback.audit_id", audit.ID.String()))
	if err := s.auditRepo.Insert(ctx, audit); err != nil {
		s.logger.Error().Err(err).Int("body_bytes", len(body)).Msg("failed to store callback audit")
		s.observeCallback("ingest_error", start)
		span.SetStatus(codes.Error, "audit insert failed")
		return nil, err
	}

	result, err := s.process(ctx, audit)
	if err != nil {
		s.observeCallback("processing_error", start)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("callback.outcome", string(result.Outcome)),
		attribute.String("payment.correlation_id", result.CorrelationID),
	)
	s.observeCallback(string(result.Outcome), start)
	return result, nil
}

// process interprets a stored delivery and applies it in one transaction
// together with marking the audit row processed.
func (s *CallbackService) process(ctx context.Context, audit *callback.Audit) (*HandleResult, error) {
	parsed := callback.ParseSTK(audit.RawBody)
	result := &HandleResult{AuditID: audit.ID, CorrelationID: parsed.Correlation()}
	log := s.logger.With().
		Str("audit_id", audit.ID.String()).
		Str("correlation_id", result.CorrelationID).
		Logger()

	if m, ok := parsed.(callback.Malformed); ok {
		log.Warn().Str("reason", m.Reason).Msg("malformed callback left unprocessed")
		result.Outcome = callback.OutcomeMalformed
		return result, nil
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var (
			outcome callback.Outcome
			applied bool
			err     error
		)
		switch r := parsed.(type) {
		case callback.Success:
			outcome, applied, err = s.applySuccess(txCtx, log, r)
		case callback.Failure:
			outcome, applied, err = s.applyFailure(txCtx, log, r)
		}
		if err != nil {
			return err
		}
		result.Outcome = outcome
		result.Applied = applied
		return s.auditRepo.MarkProcessed(txCtx, audit.ID, outcome, time.Now())
	})
	if err != nil {
		log.Error().Err(err).Msg("callback reconciliation failed")
		if recErr := s.auditRepo.RecordError(context.WithoutCancel(ctx), audit.ID, err.Error()); recErr != nil {
			log.Error().Err(recErr).Msg("failed to record callback processing error")
		}
		return nil, err
	}

	log.Info().
		Str("outcome", string(result.Outcome)).
		Bool("applied", result.Applied).
		Msg("callback reconciled")
	return result, nil
}

func (s *CallbackService) applySuccess(ctx context.Context, log zerolog.Logger, r callback.Success) (callback.Outcome, bool, error) {
	p, err := s.paymentRepo.GetByCorrelationID(ctx, r.CorrelationID)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		log.Warn().Msg("no payment for successful callback")
		return callback.OutcomeUnmatched, false, nil
	}
	if err != nil {
		return "", false, err
	}

	changed, err := p.MarkSucceeded(r.TransactionID)
	if errors.Is(err, domainErrors.ErrInvalidStateTransition) {
		log.Warn().Str("payment_id", p.ID.String()).Str("status", string(p.Status)).
			Msg("success callback for a payment in a conflicting terminal state")
		return callback.OutcomeRejected, false, nil
	}
	if err != nil {
		return "", false, err
	}
	if changed {
		if err := s.paymentRepo.Update(ctx, p); err != nil {
			return "", false, err
		}
		if err := s.outboxRepo.Insert(ctx, paymentEvent(p, outbox.EventPaymentSucceeded)); err != nil {
			return "", false, err
		}
	}

	downstream, err := s.applyDownstream(ctx, log, p, r.TransactionID)
	if err != nil {
		return "", false, err
	}
	return callback.OutcomeSuccess, changed || downstream, nil
}

// applyDownstream updates the entity the payment funds. Every write sets an
// absolute target state, so a repeated call changes nothing.
func (s *CallbackService) applyDownstream(ctx context.Context, log zerolog.Logger, p *payment.Payment, providerTxID string) (bool, error) {
	switch p.Purpose() {
	case payment.PurposeEscrow:
		t, err := s.escrowRepo.GetByPaymentRef(ctx, p.ID)
		if errors.Is(err, domainErrors.ErrEscrowNotFound) {
			log.Warn().Str("payment_id", p.ID.String()).Msg("no escrow transaction for paid escrow payment")
			s.observeDownstream("escrow", "missing")
			return false, nil
		}
		if err != nil {
			return false, wrapLookup("escrow for payment", p.ID, err)
		}

		changed, err := t.MarkFundsHeld()
		if errors.Is(err, domainErrors.ErrInvalidStateTransition) {
			log.Info().Str("escrow_id", t.ID.String()).Str("status", string(t.Status)).
				Msg("escrow already past funding, left unchanged")
			s.observeDownstream("escrow", "skipped")
			return false, nil
		}
		if err != nil || !changed {
			return false, err
		}
		if err := s.escrowRepo.UpdateStatus(ctx, t); err != nil {
			return false, err
		}
		s.observeDownstream("escrow", "updated")
		return true, s.outboxRepo.Insert(ctx, outbox.NewEntry(outbox.AggregateEscrow, t.ID, outbox.EventEscrowFundsHeld, map[string]any{
			"escrow_id":  t.ID.String(),
			"payment_id": p.ID.String(),
			"status":     string(t.Status),
		}))

	case payment.PurposeSubscription:
		id, ok := p.SubscriptionID()
		if !ok {
			log.Warn().Str("payment_id", p.ID.String()).Msg("subscription payment carries no subscription reference")
			s.observeDownstream("subscription", "missing")
			return false, nil
		}
		sub, err := s.subscriptionRepo.GetByID(ctx, id)
		if errors.Is(err, domainErrors.ErrSubscriptionNotFound) {
			log.Warn().Str("subscription_id", id.String()).Msg("referenced subscription does not exist")
			s.observeDownstream("subscription", "missing")
			return false, nil
		}
		if err != nil {
			return false, wrapLookup("subscription", id, err)
		}

		if !sub.Activate(providerTxID) {
			return false, nil
		}
		if err := s.subscriptionRepo.UpdateActivation(ctx, sub); err != nil {
			return false, err
		}
		s.observeDownstream("subscription", "updated")
		return true, s.outboxRepo.Insert(ctx, outbox.NewEntry(outbox.AggregateSubscription, sub.ID, outbox.EventSubscriptionActivated, map[string]any{
			"subscription_id": sub.ID.String(),
			"payment_id":      p.ID.String(),
			"seller_id":       sub.SellerID,
			"mpesa_tx_id":     providerTxID,
		}))

	default:
		log.Debug().Str("purpose", string(p.Purpose())).Msg("no downstream entity for payment purpose")
		return false, nil
	}
}

func (s *CallbackService) applyFailure(ctx context.Context, log zerolog.Logger, r callback.Failure) (callback.Outcome, bool, error) {
	p, err := s.paymentRepo.GetByCorrelationID(ctx, r.CorrelationID)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		log.Warn().Int("result_code", r.ResultCode).Msg("no payment for failed callback")
		return callback.OutcomeUnmatched, false, nil
	}
	if err != nil {
		return "", false, err
	}

	changed, err := p.MarkFailed()
	if errors.Is(err, domainErrors.ErrInvalidStateTransition) {
		log.Warn().Str("payment_id", p.ID.String()).Str("status", string(p.Status)).
			Msg("failure callback for a payment in a conflicting terminal state")
		return callback.OutcomeRejected, false, nil
	}
	if err != nil {
		return "", false, err
	}
	if changed {
		if err := s.paymentRepo.Update(ctx, p); err != nil {
			return "", false, err
		}
		event := paymentEvent(p, outbox.EventPaymentFailed)
		event.Payload["result_code"] = r.ResultCode
		event.Payload["result_desc"] = r.ResultDesc
		if err := s.outboxRepo.Insert(ctx, event); err != nil {
			return "", false, err
		}
	}
	log.Info().Int("result_code", r.ResultCode).Str("result_desc", r.ResultDesc).Msg("payment declined by gateway")
	return callback.OutcomeFailure, changed, nil
}

// ReplayPending re-runs reconciliation for stored deliveries that never
// completed. Rows another instance is replaying are skipped.
func (s *CallbackService) ReplayPending(ctx context.Context) (*ReplaySummary, error) {
	before := time.Now().Add(-s.replay.MinAge)
	unprocessed := false
	audits, err := s.auditRepo.List(ctx, callback.ListFilter{
		Processed:      &unprocessed,
		HasCorrelation: true,
		CreatedBefore:  &before,
		Limit:          s.replay.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	summary := &ReplaySummary{Scanned: len(audits)}
	for _, a := range audits {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		_, err := s.replayOne(ctx, a.ID)
		switch {
		case errors.Is(err, domainErrors.ErrLockAcquisitionFailed), errors.Is(err, errAlreadyProcessed):
			summary.Skipped++
			s.observeReplay("skipped")
		case err != nil:
			summary.Failed++
			s.observeReplay("failed")
		default:
			summary.Processed++
			s.observeReplay("processed")
		}
	}

	if summary.Scanned > 0 {
		s.logger.Info().
			Int("scanned", summary.Scanned).
			Int("processed", summary.Processed).
			Int("skipped", summary.Skipped).
			Int("failed", summary.Failed).
			Msg("callback replay pass finished")
	}
	return summary, nil
}

// Replay re-runs reconciliation for one stored delivery. Replaying a row that
// is already processed returns its recorded outcome and changes nothing.
func (s *CallbackService) Replay(ctx context.Context, id uuid.UUID) (*HandleResult, error) {
	result, err := s.replayOne(ctx, id)
	if errors.Is(err, errAlreadyProcessed) {
		return result, nil
	}
	if err == nil {
		s.observeReplay("processed")
	}
	return result, err
}

var errAlreadyProcessed = errors.New("callback already processed")

func (s *CallbackService) replayOne(ctx context.Context, id uuid.UUID) (*HandleResult, error) {
	unlock, err := s.locker.TryLock(ctx, "callback:"+id.String(), s.replay.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("audit_id", id.String()).Msg("failed to release replay lock")
		}
	}()

	// Re-read under the lock; another instance may have finished the row.
	audit, err := s.auditRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if audit.Processed {
		result := &HandleResult{AuditID: audit.ID}
		if audit.CorrelationID != nil {
			result.CorrelationID = *audit.CorrelationID
		}
		if audit.Outcome != nil {
			result.Outcome = *audit.Outcome
		}
		return result, errAlreadyProcessed
	}

	if err := s.auditRepo.IncrementReplay(ctx, audit.ID); err != nil {
		return nil, err
	}
	return s.process(ctx, audit)
}

// ListAudits lists stored callback deliveries for operators.
func (s *CallbackService) ListAudits(ctx context.Context, q AuditQuery) ([]*callback.Audit, error) {
	filter := callback.ListFilter{
		Processed:     q.Processed,
		CorrelationID: q.CorrelationID,
		Limit:         q.Limit,
		Offset:        q.Offset,
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if q.OlderThan > 0 {
		before := time.Now().Add(-q.OlderThan)
		filter.CreatedBefore = &before
	}
	return s.auditRepo.List(ctx, filter)
}

// GetAudit returns one stored callback delivery.
func (s *CallbackService) GetAudit(ctx context.Context, id uuid.UUID) (*callback.Audit, error) {
	return s.auditRepo.GetByID(ctx, id)
}

func (s *CallbackService) observeCallback(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.CallbacksReceived.WithLabelValues(outcome).Inc()
	s.metrics.CallbackProcessingDuration.Observe(time.Since(start).Seconds())
}

func (s *CallbackService) observeDownstream(kind, result string) {
	if s.metrics != nil {
		s.metrics.DownstreamUpdates.WithLabelValues(kind, result).Inc()
	}
}

func (s *CallbackService) observeReplay(result string) {
	if s.metrics != nil {
		s.metrics.CallbacksReplayed.WithLabelValues(result).Inc()
	}
}

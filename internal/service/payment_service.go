package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/internal/domain/escrow"
	"github.com/cassiomorais/sokopay/internal/domain/outbox"
	"github.com/cassiomorais/sokopay/internal/domain/payment"
	"github.com/cassiomorais/sokopay/internal/domain/subscription"
	"github.com/cassiomorais/sokopay/internal/infrastructure/observability"
	"github.com/cassiomorais/sokopay/internal/providers"
	"github.com/cassiomorais/sokopay/pkg/retry"
	"github.com/cassiomorais/sokopay/pkg/saga"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InitiatedMessage is returned to the buyer once the STK prompt is requested.
const InitiatedMessage = "Payment initiated. Please complete on your phone."

// correlationAttempts bounds how often a colliding correlation id is regenerated.
const correlationAttempts = 3

// Charger sends a charge to a named gateway. *providers.Factory implements it.
type Charger interface {
	Charge(ctx context.Context, name string, req providers.ChargeRequest) (*providers.ChargeResult, error)
}

// PaymentConfig holds the initiation settings taken from configuration.
type PaymentConfig struct {
	Gateway     string
	CallbackURL string
	Currency    string
}

// PaymentService handles payment initiation and payment reads.
type PaymentService struct {
	paymentRepo      payment.Repository
	escrowRepo       escrow.Repository
	subscriptionRepo subscription.Repository
	outboxRepo       outbox.Repository
	txManager        TransactionManager
	charger          Charger
	cfg              PaymentConfig
	metrics          *observability.Metrics
	logger           zerolog.Logger
}

// NewPaymentService creates a new PaymentService. metrics may be nil.
func NewPaymentService(
	paymentRepo payment.Repository,
	escrowRepo escrow.Repository,
	subscriptionRepo subscription.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	charger Charger,
	cfg PaymentConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = payment.DefaultCurrency
	}
	return &PaymentService{
		paymentRepo:      paymentRepo,
		escrowRepo:       escrowRepo,
		subscriptionRepo: subscriptionRepo,
		outboxRepo:       outboxRepo,
		txManager:        txManager,
		charger:          charger,
		cfg:              cfg,
		metrics:          metrics,
		logger:           observability.Component(logger, "payment_service"),
	}
}

// Initiate records a new payment and asks the gateway to push the charge
// prompt to the buyer's phone. It does not wait for the charge to complete;
// the outcome arrives later through the callback.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	currency := req.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	p, err := payment.NewPayment(req.UserID, payment.Amount{ValueCents: req.AmountCents, Currency: currency}, req.PurposeType, req.Phone)
	if err != nil {
		return nil, err
	}

	if req.SubscriptionID != nil {
		if _, err := s.subscriptionRepo.GetByID(ctx, *req.SubscriptionID); err != nil {
			return nil, err
		}
		p.SetReference(payment.MetaSubscriptionID, *req.SubscriptionID)
	}

	var esc *escrow.Transaction
	if req.PurposeType == payment.PurposeEscrow {
		esc = escrow.NewTransaction(p.ID)
		p.SetReference(payment.MetaEscrowID, esc.ID)
	}

	var charge *providers.ChargeResult
	initiation := saga.New("payment_initiation").
		AddStep(saga.Step{
			Name:       "persist",
			Execute:    func(ctx context.Context) error { return s.persist(ctx, p, esc) },
			Compensate: func(ctx context.Context) error { return s.abandon(ctx, p) },
		}).
		AddStep(saga.Step{
			Name: "gateway",
			Execute: func(ctx context.Context) error {
				charge, err = s.charger.Charge(ctx, s.cfg.Gateway, providers.ChargeRequest{
					CorrelationID: p.CorrelationID,
					PaymentID:     p.ID.String(),
					AmountCents:   p.Amount.ValueCents,
					Currency:      p.Amount.Currency,
					Phone:         req.Phone,
					CallbackURL:   s.cfg.CallbackURL,
					Description:   req.Description,
				})
				return err
			},
		})

	if err := initiation.Execute(ctx); err != nil {
		s.recordGateway("error")
		s.logger.Error().Err(err).
			Str("payment_id", p.ID.String()).
			Str("correlation_id", p.CorrelationID).
			Msg("payment initiation failed")
		return nil, err
	}

	s.recordGateway("accepted")
	if s.metrics != nil {
		s.metrics.PaymentsInitiated.WithLabelValues(string(req.PurposeType)).Inc()
	}
	s.logger.Info().
		Str("payment_id", p.ID.String()).
		Str("correlation_id", p.CorrelationID).
		Str("purpose", string(req.PurposeType)).
		Str("checkout_request_id", charge.CheckoutRequestID).
		Msg("payment initiated")

	return &InitiateResponse{
		CorrelationID: p.CorrelationID,
		PaymentID:     p.ID,
		Message:       InitiatedMessage,
	}, nil
}

// persist inserts the payment, its escrow row and the initiation event. A
// correlation id clash regenerates the id and tries again.
func (s *PaymentService) persist(ctx context.Context, p *payment.Payment, esc *escrow.Transaction) error {
	attempt := 0
	return retry.Do(ctx, retry.Config{
		MaxAttempts:  correlationAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		RetryIf: func(err error) bool {
			return errors.Is(err, domainErrors.ErrDuplicateCorrelationID)
		},
	}, func() error {
		if attempt > 0 {
			p.CorrelationID = payment.NewCorrelationID(time.Now())
		}
		attempt++

		return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.paymentRepo.Create(txCtx, p); err != nil {
				return err
			}
			if esc != nil {
				if err := s.escrowRepo.Create(txCtx, esc); err != nil {
					return err
				}
			}
			return s.outboxRepo.Insert(txCtx, paymentEvent(p, outbox.EventPaymentInitiated))
		})
	})
}

// abandon marks a persisted payment failed after the gateway refused it.
func (s *PaymentService) abandon(ctx context.Context, p *payment.Payment) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		changed, err := p.MarkFailed()
		if err != nil || !changed {
			return err
		}
		if err := s.paymentRepo.Update(txCtx, p); err != nil {
			return err
		}
		return s.outboxRepo.Insert(txCtx, paymentEvent(p, outbox.EventPaymentFailed))
	})
}

// GetPayment retrieves a payment by ID.
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return s.paymentRepo.GetByID(ctx, id)
}

// GetByCorrelationID retrieves a payment by the id handed out at initiation.
func (s *PaymentService) GetByCorrelationID(ctx context.Context, correlationID string) (*payment.Payment, error) {
	if !payment.IsCorrelationID(correlationID) {
		return nil, domainErrors.NewValidationError("correlationId", "has an unexpected format")
	}
	return s.paymentRepo.GetByCorrelationID(ctx, correlationID)
}

// ListPayments lists payments with filters.
func (s *PaymentService) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.paymentRepo.List(ctx, filter)
}

// CancelPayment cancels an initiated payment whose prompt the buyer abandoned.
// Cancelling an already cancelled payment is a no-op.
func (s *PaymentService) CancelPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var p *payment.Payment
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		p, err = s.paymentRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if p.Status == payment.StatusCancelled {
			return nil
		}
		if err := p.MarkCancelled(); err != nil {
			return err
		}
		if err := s.paymentRepo.Update(txCtx, p); err != nil {
			return err
		}
		return s.outboxRepo.Insert(txCtx, paymentEvent(p, outbox.EventPaymentCancelled))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("payment_id", id.String()).Msg("payment cancelled")
	return p, nil
}

func (s *PaymentService) recordGateway(result string) {
	if s.metrics != nil {
		s.metrics.GatewayRequests.WithLabelValues(s.cfg.Gateway, result).Inc()
	}
}

func paymentEvent(p *payment.Payment, eventType string) *outbox.Entry {
	payload := map[string]any{
		"payment_id":     p.ID.String(),
		"correlation_id": p.CorrelationID,
		"status":         string(p.Status),
		"purpose":        string(p.Purpose()),
		"amount_cents":   p.Amount.ValueCents,
		"currency":       p.Amount.Currency,
	}
	if p.UserID != nil {
		payload["user_id"] = *p.UserID
	}
	if p.ExternalTransactionID != nil {
		payload["mpesa_transaction_id"] = *p.ExternalTransactionID
	}
	return outbox.NewEntry(outbox.AggregatePayment, p.ID, eventType, payload)
}

func wrapLookup(entity string, id fmt.Stringer, err error) error {
	return fmt.Errorf("load %s %s: %w", entity, id, err)
}

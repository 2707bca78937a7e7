package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/google/uuid"
)

// PurposeType tags what a payment is funding.
type PurposeType string

const (
	PurposeEscrow       PurposeType = "escrow"
	PurposeSubscription PurposeType = "subscription"
)

// Status represents the payment status in the state machine
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Metadata keys stored on a payment.
const (
	MetaType           = "type"
	MetaPhone          = "phone"
	MetaSubscriptionID = "subscription_id"
	MetaEscrowID       = "escrow_id"
)

// DefaultCurrency is used when the caller does not name one.
const DefaultCurrency = "KES"

// Payment is the hub entity linking an initiation to its later callback.
type Payment struct {
	ID                    uuid.UUID
	UserID                *string
	Amount                Amount
	CorrelationID         string
	ExternalTransactionID *string
	Status                Status
	Metadata              map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
}

// Amount represents a monetary amount in the smallest currency unit (e.g. cents).
type Amount struct {
	ValueCents int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	return validateAmount(a)
}

// NewPayment creates a payment in status initiated with a fresh correlation id.
func NewPayment(userID string, amount Amount, purpose PurposeType, phone string) (*Payment, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.NewValidationError("userId", "is required")
	}
	if strings.TrimSpace(phone) == "" {
		return nil, errors.NewValidationError("phone", "is required")
	}

	now := time.Now()
	return &Payment{
		ID:            uuid.New(),
		UserID:        &userID,
		Amount:        amount,
		CorrelationID: NewCorrelationID(now),
		Status:        StatusInitiated,
		Metadata: map[string]any{
			MetaType:  string(purpose),
			MetaPhone: phone,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransitionTo checks if the payment can move to the given status.
// Re-entering the current terminal status is allowed so that redelivered
// callbacks converge instead of failing.
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	if p.IsTerminal() {
		return p.Status == newStatus
	}

	transitions := map[Status][]Status{
		StatusInitiated: {
			StatusSuccess,
			StatusFailed,
			StatusCancelled,
		},
	}

	for _, allowed := range transitions[p.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the payment to a new status. It reports whether the
// status actually changed.
func (p *Payment) TransitionTo(newStatus Status) (bool, error) {
	if !p.CanTransitionTo(newStatus) {
		return false, errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	if p.Status == newStatus {
		return false, nil
	}

	now := time.Now()
	p.Status = newStatus
	p.UpdatedAt = now
	if p.IsTerminal() {
		p.CompletedAt = &now
	}
	return true, nil
}

// MarkSucceeded records a confirmed charge. The provider transaction id is
// always written, so the last confirmed delivery wins.
func (p *Payment) MarkSucceeded(providerTxID string) (bool, error) {
	changed, err := p.TransitionTo(StatusSuccess)
	if err != nil {
		return false, err
	}
	if p.ExternalTransactionID == nil || *p.ExternalTransactionID != providerTxID {
		p.ExternalTransactionID = &providerTxID
		p.UpdatedAt = time.Now()
		changed = true
	}
	return changed, nil
}

// MarkFailed transitions the payment to failed status
func (p *Payment) MarkFailed() (bool, error) {
	return p.TransitionTo(StatusFailed)
}

// MarkCancelled transitions the payment to cancelled status
func (p *Payment) MarkCancelled() error {
	_, err := p.TransitionTo(StatusCancelled)
	return err
}

// IsTerminal checks if the payment is in a terminal state
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusSuccess ||
		p.Status == StatusFailed ||
		p.Status == StatusCancelled
}

// Purpose returns the purpose tag recorded at initiation, or "" when absent.
func (p *Payment) Purpose() PurposeType {
	s, _ := p.Metadata[MetaType].(string)
	return PurposeType(s)
}

// SubscriptionID returns the subscription reference carried in the metadata.
func (p *Payment) SubscriptionID() (uuid.UUID, bool) {
	return p.metaUUID(MetaSubscriptionID)
}

// EscrowID returns the escrow reference carried in the metadata, if any.
func (p *Payment) EscrowID() (uuid.UUID, bool) {
	return p.metaUUID(MetaEscrowID)
}

// SetReference stores a purpose-specific reference in the metadata.
func (p *Payment) SetReference(key string, id uuid.UUID) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata[key] = id.String()
}

func (p *Payment) metaUUID(key string) (uuid.UUID, bool) {
	s, ok := p.Metadata[key].(string)
	if !ok || s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func validateAmount(amount Amount) error {
	if amount.ValueCents <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if amount.Currency == "" {
		return errors.NewValidationError("currency", "cannot be empty")
	}
	if len(amount.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

package escrow

import (
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the escrow lifecycle status
type Status string

const (
	StatusPending   Status = "pending"
	StatusFundsHeld Status = "funds_held"
	StatusDelivered Status = "delivered"
	StatusCompleted Status = "completed"
	StatusDisputed  Status = "disputed"
	StatusRefunded  Status = "refunded"
)

// Transaction holds buyer funds for a listing until delivery is confirmed.
type Transaction struct {
	ID         uuid.UUID
	PaymentRef uuid.UUID
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewTransaction creates a pending escrow transaction for a payment.
func NewTransaction(paymentRef uuid.UUID) *Transaction {
	now := time.Now()
	return &Transaction{
		ID:         uuid.New(),
		PaymentRef: paymentRef,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkFundsHeld records that the funding payment succeeded. It reports
// whether the status changed. Escrows already past funding (delivered,
// completed, disputed, refunded) are never moved back.
func (t *Transaction) MarkFundsHeld() (bool, error) {
	switch t.Status {
	case StatusFundsHeld:
		return false, nil
	case StatusPending, "":
		t.Status = StatusFundsHeld
		t.UpdatedAt = time.Now()
		return true, nil
	default:
		return false, errors.NewDomainError(
			"invalid_transition",
			"cannot hold funds for escrow in status "+string(t.Status),
			errors.ErrInvalidStateTransition,
		)
	}
}

// IsFunded reports whether the escrow has received its payment.
func (t *Transaction) IsFunded() bool {
	return t.Status != StatusPending && t.Status != ""
}

package escrow

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for escrow persistence
type Repository interface {
	// Create inserts a new escrow transaction
	Create(ctx context.Context, t *Transaction) error

	// GetByPaymentRef returns the escrow funded by the given payment.
	// No match is reported as errors.ErrEscrowNotFound.
	GetByPaymentRef(ctx context.Context, paymentID uuid.UUID) (*Transaction, error)

	// UpdateStatus writes the escrow status
	UpdateStatus(ctx context.Context, t *Transaction) error
}

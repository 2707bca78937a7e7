package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// Create inserts a new payment. A clash on the correlation id is
	// reported as errors.ErrDuplicateCorrelationID.
	Create(ctx context.Context, payment *Payment) error

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByCorrelationID retrieves a payment by its gateway correlation id.
	// No match is reported as errors.ErrPaymentNotFound.
	GetByCorrelationID(ctx context.Context, correlationID string) (*Payment, error)

	// Update persists status, transaction id and metadata changes
	Update(ctx context.Context, payment *Payment) error

	// List lists payments with filters
	List(ctx context.Context, filter ListFilter) ([]*Payment, error)
}

// ListFilter defines filters for listing payments
type ListFilter struct {
	UserID    *string
	Status    *Status
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for seller subscription persistence
type Repository interface {
	// GetByID returns errors.ErrSubscriptionNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*SellerSubscription, error)

	// UpdateActivation writes active, mpesa_tx_id and activated_at.
	UpdateActivation(ctx context.Context, s *SellerSubscription) error
}

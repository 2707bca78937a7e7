package subscription

import (
	"time"

	"github.com/google/uuid"
)

// SellerSubscription is a paid seller plan activated by a mobile-money payment.
type SellerSubscription struct {
	ID          uuid.UUID
	SellerID    string
	PlanCode    string
	Active      bool
	MpesaTxID   *string
	ActivatedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Activate turns the subscription on and records the provider receipt.
// It reports whether anything changed.
func (s *SellerSubscription) Activate(providerTxID string) bool {
	if s.Active && s.MpesaTxID != nil && *s.MpesaTxID == providerTxID {
		return false
	}

	now := time.Now()
	if !s.Active {
		s.ActivatedAt = &now
	}
	s.Active = true
	s.MpesaTxID = &providerTxID
	s.UpdatedAt = now
	return true
}

package service

import (
	"context"

	"github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/internal/domain/payment"
	"github.com/cassiomorais/sokopay/internal/middleware"
	"github.com/google/uuid"
)

// AuthzService scopes payment reads to the authenticated caller.
// Admins see every payment.
type AuthzService struct {
	paymentRepo payment.Repository
}

func NewAuthzService(paymentRepo payment.Repository) *AuthzService {
	return &AuthzService{paymentRepo: paymentRepo}
}

// AuthorizePayment loads the payment and checks the caller may see it.
func (s *AuthzService) AuthorizePayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapLookup("payment", id, err)
	}
	if err := s.VerifyPaymentOwnership(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *AuthzService) VerifyPaymentOwnership(ctx context.Context, p *payment.Payment) error {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return errors.ErrUnauthorized
	}
	if middleware.IsAdmin(ctx) {
		return nil
	}
	if p.UserID == nil || *p.UserID != userID {
		return errors.ErrForbidden
	}
	return nil
}

// ScopeFilter pins a listing to the caller's own payments unless the caller
// is an admin.
func (s *AuthzService) ScopeFilter(ctx context.Context, filter *payment.ListFilter) error {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return errors.ErrUnauthorized
	}
	if middleware.IsAdmin(ctx) {
		return nil
	}
	filter.UserID = &userID
	return nil
}

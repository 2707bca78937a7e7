package subscription_test

import (
	"testing"

	"github.com/cassiomorais/sokopay/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestActivate_Inactive(t *testing.T) {
	s := &subscription.SellerSubscription{ID: uuid.New(), PlanCode: "pro"}

	changed := s.Activate("RCPT123")

	assert.True(t, changed)
	assert.True(t, s.Active)
	assert.Equal(t, "RCPT123", *s.MpesaTxID)
	assert.NotNil(t, s.ActivatedAt)
}

func TestActivate_SameReceiptIsNoOp(t *testing.T) {
	s := &subscription.SellerSubscription{ID: uuid.New()}
	s.Activate("RCPT123")
	activatedAt := *s.ActivatedAt

	changed := s.Activate("RCPT123")

	assert.False(t, changed)
	assert.Equal(t, activatedAt, *s.ActivatedAt)
}

func TestActivate_AlreadyActiveKeepsActivationTime(t *testing.T) {
	s := &subscription.SellerSubscription{ID: uuid.New()}
	s.Activate("RCPT1")
	activatedAt := *s.ActivatedAt

	changed := s.Activate("RCPT2")

	assert.True(t, changed)
	assert.Equal(t, "RCPT2", *s.MpesaTxID)
	assert.Equal(t, activatedAt, *s.ActivatedAt)
}

package testutil

import (
	"fmt"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/escrow"
	"github.com/cassiomorais/sokopay/internal/domain/payment"
	"github.com/cassiomorais/sokopay/internal/domain/subscription"
	"github.com/google/uuid"
)

// NewTestPayment returns an initiated payment with the given purpose.
func NewTestPayment(purpose payment.PurposeType, amountCents int64) *payment.Payment {
	p, err := payment.NewPayment("user-"+uuid.NewString()[:8], payment.Amount{ValueCents: amountCents, Currency: payment.DefaultCurrency}, purpose, "254712345678")
	if err != nil {
		panic(err)
	}
	return p
}

// NewTestSubscription returns an inactive seller subscription.
func NewTestSubscription(sellerID string) *subscription.SellerSubscription {
	now := time.Now()
	return &subscription.SellerSubscription{
		ID:        uuid.New(),
		SellerID:  sellerID,
		PlanCode:  "pro_monthly",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestEscrow returns a pending escrow funded by paymentID.
func NewTestEscrow(paymentID uuid.UUID) *escrow.Transaction {
	return escrow.NewTransaction(paymentID)
}

// STKSuccessBody builds a successful gateway callback body.
func STKSuccessBody(correlationID, receipt string) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"MR-1","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":50.00},{"Name":"MpesaReceiptNumber","Value":%q},{"Name":"PhoneNumber","Value":254712345678}]}}}}`, correlationID, receipt))
}

// STKFailureBody builds a declined gateway callback body.
func STKFailureBody(correlationID string, resultCode int, desc string) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"MR-1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":%q}}}`, correlationID, resultCode, desc))
}

func StringPtr(s string) *string {
	return &s
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

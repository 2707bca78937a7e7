package providers

import (
	"context"
)

// ChargeRequest asks the gateway to push a payment prompt to the payer's phone.
type ChargeRequest struct {
	CorrelationID string
	PaymentID     string
	AmountCents   int64
	Currency      string
	Phone         string
	CallbackURL   string
	Description   string
}

// ChargeResult is the gateway's synchronous acknowledgement. The charge itself
// completes later through the callback endpoint.
type ChargeResult struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
}

// Gateway is the interface that mobile-money gateways implement.
type Gateway interface {
	// Name returns the gateway name.
	Name() string
	// InitiateCharge starts an asynchronous charge. A non-2xx answer is
	// returned as *errors.UpstreamGatewayError.
	InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

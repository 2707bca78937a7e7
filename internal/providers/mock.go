package providers

import (
	"context"
	"math/rand"
	"time"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/google/uuid"
)

// MockGateway acknowledges charges without contacting a real gateway. It is
// used for local development and tests.
type MockGateway struct {
	name        string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0
}

type MockGatewayOption func(*MockGateway)

func WithFailureRate(rate float64) MockGatewayOption {
	return func(p *MockGateway) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockGatewayOption {
	return func(p *MockGateway) { p.latency = d }
}

func WithTimeoutRate(rate float64) MockGatewayOption {
	return func(p *MockGateway) { p.timeoutRate = rate }
}

func NewMockGateway(name string, opts ...MockGatewayOption) *MockGateway {
	p := &MockGateway{
		name:    name,
		latency: 50 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockGateway) Name() string { return p.name }

func (p *MockGateway) InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rand.Float64() < p.timeoutRate {
		return nil, domainErrors.ErrGatewayTimeout
	}

	if rand.Float64() < p.failureRate {
		return nil, domainErrors.NewUpstreamGatewayError(p.name, 400,
			[]byte(`{"errorCode":"400.002.02","errorMessage":"simulated rejection"}`))
	}

	return &ChargeResult{
		MerchantRequestID:   p.name + "-" + uuid.New().String()[:8],
		CheckoutRequestID:   req.CorrelationID,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
	}, nil
}

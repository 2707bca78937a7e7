package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the per-gateway circuit breaker.
type BreakerSettings struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// OnStateChange is notified on every breaker transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

type Factory struct {
	settings        BreakerSettings
	gateways        map[string]Gateway
	circuitBreakers map[string]*gobreaker.CircuitBreaker[*ChargeResult]
}

func NewFactory(settings BreakerSettings, gateways ...Gateway) *Factory {
	if settings.Threshold == 0 {
		settings.Threshold = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	f := &Factory{
		settings:        settings,
		gateways:        make(map[string]Gateway),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[*ChargeResult]),
	}
	for _, g := range gateways {
		f.Register(g)
	}
	return f
}

func (f *Factory) Register(g Gateway) {
	threshold := f.settings.Threshold
	f.gateways[g.Name()] = g
	f.circuitBreakers[g.Name()] = gobreaker.NewCircuitBreaker[*ChargeResult](gobreaker.Settings{
		Name:        g.Name(),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     f.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if f.settings.OnStateChange != nil {
				f.settings.OnStateChange(name, from, to)
			}
		},
	})
}

func (f *Factory) Get(name string) (Gateway, *gobreaker.CircuitBreaker[*ChargeResult], error) {
	g, ok := f.gateways[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown gateway %q: %w", name, domainErrors.ErrGatewayNotFound)
	}
	return g, f.circuitBreakers[name], nil
}

// Charge runs InitiateCharge on the named gateway through its breaker. An open
// breaker is reported as errors.ErrGatewayUnavailable.
func (f *Factory) Charge(ctx context.Context, name string, req ChargeRequest) (*ChargeResult, error) {
	g, breaker, err := f.Get(name)
	if err != nil {
		return nil, err
	}

	result, err := breaker.Execute(func() (*ChargeResult, error) {
		return g.InitiateCharge(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit %s", domainErrors.ErrGatewayUnavailable, err)
	}
	return result, err
}

// isBreakerSuccess keeps client-side rejections (4xx) from opening the
// breaker. Only outages count as failures.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var upstream *domainErrors.UpstreamGatewayError
	if errors.As(err, &upstream) {
		return upstream.StatusCode < 500
	}
	return errors.Is(err, context.Canceled)
}

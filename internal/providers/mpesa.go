package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	mpesaName         = "mpesa"
	stkPushPath       = "/stkpush"
	maxGatewayBodyLen = 64 << 10
)

// MpesaConfig configures the STK push client.
type MpesaConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   retry.Config
}

// MpesaGateway sends STK push requests over HTTP.
type MpesaGateway struct {
	cfg    MpesaConfig
	client *http.Client
	logger zerolog.Logger
}

type MpesaOption func(*MpesaGateway)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) MpesaOption {
	return func(g *MpesaGateway) { g.client = c }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l zerolog.Logger) MpesaOption {
	return func(g *MpesaGateway) { g.logger = l }
}

func NewMpesaGateway(cfg MpesaConfig, opts ...MpesaOption) *MpesaGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	g := &MpesaGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *MpesaGateway) Name() string { return mpesaName }

type stkPushRequest struct {
	CheckoutRequestID string      `json:"CheckoutRequestID"`
	Amount            json.Number `json:"Amount"`
	Currency          string      `json:"Currency"`
	PhoneNumber       string      `json:"PhoneNumber"`
	CallBackURL       string      `json:"CallBackURL"`
	AccountReference  string      `json:"AccountReference"`
	TransactionDesc   string      `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
}

// transportError marks failures that never reached an HTTP response.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// InitiateCharge posts an STK push. Transport failures are retried; any HTTP
// answer, including non-2xx, is final.
func (g *MpesaGateway) InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload, err := json.Marshal(stkPushRequest{
		CheckoutRequestID: req.CorrelationID,
		Amount:            json.Number(decimal.New(req.AmountCents, -2).String()),
		Currency:          req.Currency,
		PhoneNumber:       req.Phone,
		CallBackURL:       req.CallbackURL,
		AccountReference:  req.PaymentID,
		TransactionDesc:   req.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal stk push: %w", err)
	}

	rc := g.cfg.Retry
	rc.RetryIf = func(err error) bool {
		var te *transportError
		return errors.As(err, &te) && ctx.Err() == nil
	}
	rc.OnRetry = func(n uint, err error) {
		g.logger.Warn().Err(err).Uint("attempt", n+1).Str("correlation_id", req.CorrelationID).Msg("retrying gateway request")
	}

	result, err := retry.DoWithResult(ctx, rc, func() (*ChargeResult, error) {
		return g.send(ctx, payload)
	})
	if err != nil {
		var te *transportError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrGatewayTimeout, err)
		case errors.As(err, &te):
			var ne net.Error
			if errors.As(te.err, &ne) && ne.Timeout() {
				return nil, fmt.Errorf("%w: %v", domainErrors.ErrGatewayTimeout, te.err)
			}
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrGatewayUnavailable, te.err)
		}
		return nil, err
	}
	return result, nil
}

func (g *MpesaGateway) send(ctx context.Context, payload []byte) (*ChargeResult, error) {
	url := strings.TrimRight(g.cfg.BaseURL, "/") + stkPushPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBodyLen))
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("read gateway response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domainErrors.NewUpstreamGatewayError(mpesaName, resp.StatusCode, body)
	}

	var out stkPushResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return &ChargeResult{
		MerchantRequestID:   out.MerchantRequestID,
		CheckoutRequestID:   out.CheckoutRequestID,
		ResponseCode:        out.ResponseCode,
		ResponseDescription: out.ResponseDescription,
	}, nil
}

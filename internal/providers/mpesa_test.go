package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMpesaConfig(url string) MpesaConfig {
	return MpesaConfig{
		BaseURL: url,
		APIKey:  "secret-key",
		Timeout: 2 * time.Second,
		Retry:   retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func TestMpesaGateway_InitiateCharge_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/stkpush", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"MerchantRequestID":"m-1","CheckoutRequestID":"CHK1700000000000abc1234","ResponseCode":"0","ResponseDescription":"Success"}`))
	}))
	defer srv.Close()

	gw := NewMpesaGateway(testMpesaConfig(srv.URL + "/"))
	result, err := gw.InitiateCharge(context.Background(), chargeRequest())
	require.NoError(t, err)

	assert.Equal(t, "m-1", result.MerchantRequestID)
	assert.Equal(t, "0", result.ResponseCode)
	assert.Equal(t, "CHK1700000000000abc1234", got["CheckoutRequestID"])
	assert.Equal(t, float64(50), got["Amount"])
	assert.Equal(t, "254712345678", got["PhoneNumber"])
	assert.Equal(t, "https://example.test/api/v1/payments/mpesa/callback", got["CallBackURL"])
}

func TestMpesaGateway_InitiateCharge_UpstreamErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Unauthorized"}`))
	}))
	defer srv.Close()

	gw := NewMpesaGateway(testMpesaConfig(srv.URL))
	_, err := gw.InitiateCharge(context.Background(), chargeRequest())

	var upstream *domainErrors.UpstreamGatewayError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, string(upstream.Body))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMpesaGateway_InitiateCharge_TransportErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gw := NewMpesaGateway(testMpesaConfig(url))
	_, err := gw.InitiateCharge(context.Background(), chargeRequest())

	assert.ErrorIs(t, err, domainErrors.ErrGatewayUnavailable)
}

func TestMpesaGateway_InitiateCharge_NoAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testMpesaConfig(srv.URL)
	cfg.APIKey = ""
	result, err := NewMpesaGateway(cfg).InitiateCharge(context.Background(), chargeRequest())
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestMpesaGateway_Name(t *testing.T) {
	assert.Equal(t, "mpesa", NewMpesaGateway(MpesaConfig{}).Name())
}

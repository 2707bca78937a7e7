package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassiomorais/sokopay/internal/infrastructure/config"
	"github.com/cassiomorais/sokopay/internal/middleware"
	"github.com/cassiomorais/sokopay/internal/service"
	"github.com/cassiomorais/sokopay/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret     = "test-secret"
	testCallbackToken = "s3cret"
)

// --- Test Helpers ---

type apiFixture struct {
	router   *chi.Mux
	payments *testutil.MockPaymentRepository
	escrows  *testutil.MockEscrowRepository
	subs     *testutil.MockSubscriptionRepository
	audits   *testutil.MockCallbackRepository
	outbox   *testutil.MockOutboxRepository
	charger  *testutil.MockCharger
	locker   *testutil.MockLocker
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	return setupAPIWithServer(t, config.ServerConfig{MaxBodyBytes: 1 << 20})
}

func setupAPIWithServer(t *testing.T, server config.ServerConfig) *apiFixture {
	t.Helper()
	f := &apiFixture{
		payments: testutil.NewMockPaymentRepository(),
		escrows:  testutil.NewMockEscrowRepository(),
		subs:     testutil.NewMockSubscriptionRepository(),
		audits:   testutil.NewMockCallbackRepository(),
		outbox:   &testutil.MockOutboxRepository{},
		charger:  &testutil.MockCharger{},
		locker:   testutil.NewMockLocker(),
	}
	txManager := testutil.NewMockTransactionManager()

	paymentSvc := service.NewPaymentService(f.payments, f.escrows, f.subs, f.outbox, txManager, f.charger, service.PaymentConfig{
		Gateway:     "mpesa",
		CallbackURL: "https://soko.example/api/v1/payments/mpesa/callback",
	}, nil, zerolog.Nop())
	callbackSvc := service.NewCallbackService(f.audits, f.payments, f.escrows, f.subs, f.outbox, txManager, f.locker,
		service.ReplayConfig{BatchSize: 10, LockTTL: time.Second}, nil, zerolog.Nop())

	f.router = NewRouter(RouterDeps{
		DB:              PingerFunc(func(ctx context.Context) error { return nil }),
		PaymentService:  paymentSvc,
		CallbackService: callbackSvc,
		AuthzService:    service.NewAuthzService(f.payments),
		MetricsHandler:  http.NotFoundHandler(),
		Server:          server,
		Auth:            config.AuthConfig{JWTSecret: testJWTSecret},
		Callback:        config.CallbackConfig{Token: testCallbackToken},
		ServiceName:     "sokopay-test",
		Logger:          zerolog.Nop(),
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

const callbackPath = "/api/v1/payments/mpesa/callback?token=" + testCallbackToken

package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/sokopay/internal/infrastructure/config"
	"github.com/cassiomorais/sokopay/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/sokopay/internal/middleware"
	"github.com/cassiomorais/sokopay/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	DB               Pinger
	Redis            Pinger
	PaymentService   *service.PaymentService
	CallbackService  *service.CallbackService
	AuthzService     *service.AuthzService
	IdempotencyStore customMW.IdempotencyStore
	Metrics          *observability.Metrics
	MetricsHandler   http.Handler
	Server           config.ServerConfig
	Auth             config.AuthConfig
	Callback         config.CallbackConfig
	IdempotencyTTL   time.Duration
	ServiceName      string
	Logger           zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Idempotency-Replayed"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.DB, deps.Redis)
	paymentH := NewPaymentController(deps.PaymentService, deps.AuthzService)
	callbackH := NewCallbackController(deps.CallbackService, deps.Server.MaxBodyBytes)
	adminH := NewAdminController(deps.CallbackService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	rateLimit := customMW.RateLimit(deps.Server.RateLimit, deps.Server.RateWindow)
	requireAuth := customMW.RequireAuth(deps.Auth.JWTSecret)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			// Public: the buyer's client.
			r.Group(func(r chi.Router) {
				r.Use(rateLimit)
				if deps.IdempotencyStore != nil {
					r.With(customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL, deps.Logger)).
						Post("/initiate", paymentH.Initiate)
				} else {
					r.Post("/initiate", paymentH.Initiate)
				}
			})

			// Public: the gateway. Deliveries come from a handful of gateway
			// addresses and every one must reach the audit insert, so the
			// per-IP limiter does not apply here.
			r.With(customMW.CallbackToken(deps.Callback.Token)).Post("/mpesa/callback", callbackH.Receive)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", paymentH.ListPayments)
				r.Get("/{id}", paymentH.GetPayment)
				r.Get("/by-correlation/{correlationId}", paymentH.GetByCorrelation)
				r.Post("/{id}/cancel", paymentH.CancelPayment)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(customMW.RequireRole(customMW.RoleAdmin))
			r.Get("/callbacks", adminH.ListCallbacks)
			r.Post("/callbacks/replay", adminH.ReplayPending)
			r.Get("/callbacks/{id}", adminH.GetCallback)
			r.Post("/callbacks/{id}/replay", adminH.ReplayCallback)
		})
	})

	return r
}

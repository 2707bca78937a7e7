package bootstrap

import (
	"context"
	"fmt"

	"github.com/cassiomorais/sokopay/internal/infrastructure/config"
	"github.com/cassiomorais/sokopay/internal/infrastructure/kafka"
	"github.com/cassiomorais/sokopay/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/sokopay/internal/infrastructure/redis"
	"github.com/cassiomorais/sokopay/internal/providers"
	"github.com/cassiomorais/sokopay/internal/repository/postgres"
	"github.com/cassiomorais/sokopay/internal/service"
	"github.com/cassiomorais/sokopay/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Services holds the repositories and services shared by the binaries.
type Services struct {
	PaymentRepo     *postgres.PaymentRepository
	CallbackRepo    *postgres.CallbackRepository
	IdempotencyRepo *postgres.IdempotencyRepository
	OutboxRepo      *postgres.OutboxRepository
	TxManager       *postgres.TxManager

	Payments  *service.PaymentService
	Callbacks *service.CallbackService
	Authz     *service.AuthzService
}

// NewServices wires repositories, the gateway factory and the services.
func NewServices(app *App) (*Services, error) {
	cfg := app.Config

	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	escrowRepo := postgres.NewEscrowRepository(app.Pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(app.Pool)
	callbackRepo := postgres.NewCallbackRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	factory, err := NewGatewayFactory(cfg.Gateway, app.Metrics, app.Logger)
	if err != nil {
		return nil, err
	}

	payments := service.NewPaymentService(paymentRepo, escrowRepo, subscriptionRepo, outboxRepo, txManager, factory,
		service.PaymentConfig{
			Gateway:     cfg.Gateway.Provider,
			CallbackURL: cfg.Gateway.CallbackURL,
			Currency:    cfg.Payment.Currency,
		}, app.Metrics, app.Logger)

	callbacks := service.NewCallbackService(callbackRepo, paymentRepo, escrowRepo, subscriptionRepo, outboxRepo, txManager,
		infraRedis.NewLocker(app.Redis),
		service.ReplayConfig{
			MinAge:    cfg.Worker.ReplayMinAge,
			BatchSize: cfg.Worker.ReplayBatchSize,
			LockTTL:   cfg.Worker.LockTTL,
		}, app.Metrics, app.Logger)

	return &Services{
		PaymentRepo:     paymentRepo,
		CallbackRepo:    callbackRepo,
		IdempotencyRepo: postgres.NewIdempotencyRepository(app.Pool),
		OutboxRepo:      outboxRepo,
		TxManager:       txManager,
		Payments:        payments,
		Callbacks:       callbacks,
		Authz:           service.NewAuthzService(paymentRepo),
	}, nil
}

// NewGatewayFactory registers the configured gateway behind a circuit breaker.
func NewGatewayFactory(cfg config.GatewayConfig, metrics *observability.Metrics, logger zerolog.Logger) (*providers.Factory, error) {
	settings := providers.BreakerSettings{
		Threshold: uint32(cfg.CircuitBreakerThreshold),
		Timeout:   cfg.CircuitBreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("gateway", name).Str("from", from.String()).Str("to", to.String()).
				Msg("gateway circuit breaker state changed")
			if metrics != nil {
				metrics.RecordBreakerState(name, from, to)
			}
		},
	}

	switch cfg.Provider {
	case "mock":
		return providers.NewFactory(settings, providers.NewMockGateway("mock")), nil
	case "mpesa":
		gw := providers.NewMpesaGateway(providers.MpesaConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
			Retry: retry.Config{
				MaxAttempts:  uint(cfg.MaxRetries),
				InitialDelay: cfg.RetryDelay,
				MaxDelay:     cfg.Timeout,
			},
		}, providers.WithLogger(observability.Component(logger, "mpesa_gateway")))
		return providers.NewFactory(settings, gw), nil
	default:
		return nil, fmt.Errorf("unsupported gateway provider %q", cfg.Provider)
	}
}

// NewChangeFeed returns the publisher selected by worker.change_feed. Dead
// letters always go to the redis stream.
func NewChangeFeed(app *App) (service.Publisher, service.DeadLetterPublisher, string, error) {
	wcfg := app.Config.Worker
	dlq := infraRedis.NewStreamProducer(app.Redis, infraRedis.DLQStream)

	switch wcfg.ChangeFeed {
	case config.ChangeFeedKafka:
		return kafka.NewProducer(wcfg.KafkaBrokers, wcfg.KafkaTopic, app.Logger), dlq, wcfg.KafkaTopic, nil
	case config.ChangeFeedRedis, "":
		stream := wcfg.ChangeFeedStream
		if stream == "" {
			stream = infraRedis.ChangeFeedStream
		}
		return infraRedis.NewStreamProducer(app.Redis, stream), dlq, stream, nil
	default:
		return nil, nil, "", fmt.Errorf("unsupported change feed %q", wcfg.ChangeFeed)
	}
}

// PingDB and PingRedis back the readiness probe.
func (a *App) PingDB(ctx context.Context) error { return a.Pool.Ping(ctx) }

func (a *App) PingRedis(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/sokopay/internal/bootstrap"
	"github.com/cassiomorais/sokopay/internal/repository/postgres"
	"github.com/cassiomorais/sokopay/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "sokopay-worker", "sokopay_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svcs, err := bootstrap.NewServices(app)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to wire services")
	}

	publisher, dlq, feed, err := bootstrap.NewChangeFeed(app)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to configure change feed")
	}
	defer publisher.Close()

	workerCfg := app.Config.Worker
	relay := service.NewOutboxRelay(svcs.OutboxRepo, svcs.TxManager, publisher, dlq,
		int(workerCfg.BatchSize), feed, app.Metrics, app.Logger)

	app.Logger.Info().
		Str("change_feed", workerCfg.ChangeFeed).
		Str("destination", feed).
		Dur("replay_interval", workerCfg.ReplayInterval).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Outbox relay (polls the outbox table and publishes the change feed).
	g.Go(func() error {
		return runEvery(gCtx, workerCfg.OutboxPollInterval, func(ctx context.Context) {
			if _, err := relay.RunOnce(ctx); err != nil {
				app.Logger.Error().Err(err).Msg("Outbox relay error")
			}
		})
	})

	// 2. Callback reconciler (replays deliveries that never completed).
	g.Go(func() error {
		return runEvery(gCtx, workerCfg.ReplayInterval, func(ctx context.Context) {
			if _, err := svcs.Callbacks.ReplayPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.Logger.Error().Err(err).Msg("Callback replay error")
			}
		})
	})

	// 3. Idempotency key cleanup.
	g.Go(func() error {
		return runCleanup(gCtx, app.Logger, svcs.IdempotencyRepo, workerCfg.CleanupInterval)
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		fn(ctx)
	}
}

func runCleanup(ctx context.Context, logger zerolog.Logger, repo *postgres.IdempotencyRepository, interval time.Duration) error {
	return runEvery(ctx, interval, func(ctx context.Context) {
		n, err := repo.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency cleanup failed")
			return
		}
		if n > 0 {
			logger.Info().Int64("deleted", n).Msg("Expired idempotency keys removed")
		}
	})
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/sokopay/internal/bootstrap"
	"github.com/cassiomorais/sokopay/internal/controller"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "sokopay-api", "sokopay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svcs, err := bootstrap.NewServices(app)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to wire services")
	}

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		DB:               controller.PingerFunc(app.PingDB),
		Redis:            controller.PingerFunc(app.PingRedis),
		PaymentService:   svcs.Payments,
		CallbackService:  svcs.Callbacks,
		AuthzService:     svcs.Authz,
		IdempotencyStore: svcs.IdempotencyRepo,
		Metrics:          app.Metrics,
		Server:           app.Config.Server,
		Auth:             app.Config.Auth,
		Callback:         app.Config.Callback,
		IdempotencyTTL:   app.Config.Payment.IdempotencyTTL,
		ServiceName:      app.ServiceName,
		Logger:           app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}

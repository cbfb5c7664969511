package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/onramp/internal/bootstrap"
	"github.com/cassiomorais/onramp/internal/controller"
	"github.com/cassiomorais/onramp/internal/providers"
	"github.com/cassiomorais/onramp/internal/repository/postgres"
	"github.com/cassiomorais/onramp/internal/service"
	"github.com/cassiomorais/onramp/pkg/retry"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "onramp-api", "onramp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	sessionRepo := postgres.NewSessionRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Providers ---
	providerCfg := app.Config.Provider
	providerFactory := providers.NewFactory(providers.NewHTTPProvider(providers.HTTPProviderConfig{
		Name:           providerCfg.Name,
		APIBaseURL:     providerCfg.APIBaseURL,
		WidgetBaseURL:  providerCfg.WidgetBaseURL,
		PublishableKey: providerCfg.PublishableKey,
		SecretKey:      providerCfg.SecretKey,
		RequestTimeout: providerCfg.RequestTimeout,
	}))

	// --- Services ---
	sessionService := service.NewSessionService(sessionRepo, outboxRepo, txManager, providerFactory, providerCfg)
	verificationService := service.NewVerificationService(
		sessionRepo, outboxRepo, txManager, providerFactory,
		app.Escrow, providerCfg.Name, retry.DefaultConfig(),
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:                app.Pool,
		RedisClient:         app.Redis,
		SessionService:      sessionService,
		VerificationService: verificationService,
		IdempotencyRepo:     idempotencyRepo,
		Metrics:             app.Metrics,
		ServerConfig:        app.Config.Server,
		ProviderName:        providerCfg.Name,
		JWTSecret:           app.Config.Auth.JWTSecret,
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}

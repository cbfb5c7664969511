package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/onramp/internal/bootstrap"
	infraRedis "github.com/cassiomorais/onramp/internal/infrastructure/redis"
	"github.com/cassiomorais/onramp/internal/providers"
	"github.com/cassiomorais/onramp/internal/repository/postgres"
	"github.com/cassiomorais/onramp/internal/service"
	"github.com/cassiomorais/onramp/internal/worker"
	"github.com/cassiomorais/onramp/pkg/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "onramp-worker", "onramp_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	sessionRepo := postgres.NewSessionRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	providerCfg := app.Config.Provider
	providerFactory := providers.NewFactory(providers.NewHTTPProvider(providers.HTTPProviderConfig{
		Name:           providerCfg.Name,
		APIBaseURL:     providerCfg.APIBaseURL,
		WidgetBaseURL:  providerCfg.WidgetBaseURL,
		PublishableKey: providerCfg.PublishableKey,
		SecretKey:      providerCfg.SecretKey,
		RequestTimeout: providerCfg.RequestTimeout,
	}))

	workerCfg := app.Config.Worker
	retryCfg := retry.Config{
		MaxAttempts:  uint(workerCfg.MaxRetries),
		InitialDelay: workerCfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	verificationService := service.NewVerificationService(
		sessionRepo, outboxRepo, txManager, providerFactory,
		app.Escrow, providerCfg.Name, retryCfg,
	)
	sessionService := service.NewSessionService(sessionRepo, outboxRepo, txManager, providerFactory, providerCfg)

	streamProducer := infraRedis.NewStreamProducer(app.Redis)
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.SettlementStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
	}

	settlement := worker.NewSettlement(
		consumer,
		streamProducer,
		verificationService,
		func(sessionID string) worker.SessionLock {
			return infraRedis.NewDistributedLock(app.Redis, "session:"+sessionID, workerCfg.LockTTL)
		},
		app.Metrics,
		app.Logger,
		worker.SettlementConfig{
			ClaimMinIdle:  workerCfg.ClaimMinIdle,
			ClaimInterval: workerCfg.ClaimInterval,
			ClaimBatch:    workerCfg.BatchSize,
		},
	)

	app.Logger.Info().
		Str("stream", infraRedis.SettlementStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Settlement processor (reads from Redis Streams).
	g.Go(func() error {
		return settlement.Run(gCtx)
	})

	// 2. Pending reclaimer (redelivers unacked messages from crashed or
	//    contended consumers).
	g.Go(func() error {
		return settlement.RunReclaimer(gCtx)
	})

	// 3. Outbox processor (polls outbox table and publishes to Redis Streams).
	g.Go(func() error {
		return runOutboxProcessor(gCtx, app.Logger, txManager, outboxRepo, streamProducer, workerCfg.OutboxPollInterval)
	})

	// 4. Expiry sweeper (marks stale sessions expired).
	g.Go(func() error {
		return runExpirySweeper(gCtx, app.Logger, sessionService, workerCfg.ExpiryInterval)
	})

	// 5. Wait for shutdown signal.
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

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runOutboxProcessor(
	ctx context.Context,
	logger zerolog.Logger,
	txManager *postgres.TxManager,
	outboxRepo *postgres.OutboxRepository,
	streamProducer *infraRedis.StreamProducer,
	pollInterval time.Duration,
) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			entries, err := outboxRepo.GetPending(txCtx, 10)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if err := streamProducer.PublishSettlementEvent(
					ctx, entry.AggregateID.String(), entry.EventType, entry.Payload,
				); err != nil {
					logger.Error().Err(err).Str("outbox_id", entry.ID.String()).Msg("Failed to publish outbox event")
					outboxRepo.MarkFailed(txCtx, entry.ID)
					continue
				}
				outboxRepo.MarkPublished(txCtx, entry.ID)
			}
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Outbox processor error")
		}
	}
}

func runExpirySweeper(
	ctx context.Context,
	logger zerolog.Logger,
	sessionService *service.SessionService,
	interval time.Duration,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		expired, err := sessionService.ExpireStaleSessions(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Expiry sweep failed")
			continue
		}
		if expired > 0 {
			logger.Info().Int64("count", expired).Msg("Expired stale sessions")
		}
	}
}

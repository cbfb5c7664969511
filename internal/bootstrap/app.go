package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/onramp/internal/escrow"
	"github.com/cassiomorais/onramp/internal/infrastructure/config"
	"github.com/cassiomorais/onramp/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/onramp/internal/infrastructure/redis"
	"github.com/cassiomorais/onramp/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Escrow  escrow.Client

	escrowCloser func()
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	escrowClient, escrowCloser, err := newEscrowClient(ctx, cfg.Escrow)
	if err != nil {
		redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("connect to escrow platform: %w", err)
	}
	logger.Info().Str("mode", cfg.Escrow.Mode).Msg("Escrow client ready")

	return &App{
		Config:       cfg,
		Logger:       logger,
		Pool:         pool,
		Redis:        redisClient,
		Metrics:      metrics,
		Escrow:       escrowClient,
		escrowCloser: escrowCloser,
	}, nil
}

func newEscrowClient(ctx context.Context, cfg config.EscrowConfig) (escrow.Client, func(), error) {
	switch cfg.Mode {
	case "eth":
		cli, err := escrow.NewEthClient(ctx, escrow.EthClientConfig{
			RPCURL:          cfg.RPCURL,
			ContractAddress: cfg.ContractAddress,
		})
		if err != nil {
			return nil, nil, err
		}
		return cli, cli.Close, nil
	case "fake", "":
		return escrow.NewFakeClient(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown escrow mode %q", cfg.Mode)
	}
}

func (a *App) Close() {
	if a.escrowCloser != nil {
		a.escrowCloser()
	}
	a.Redis.Close()
	a.Pool.Close()
}

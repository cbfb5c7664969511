package controller

import (
	"time"

	"github.com/cassiomorais/onramp/internal/infrastructure/config"
	"github.com/cassiomorais/onramp/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/onramp/internal/middleware"
	"github.com/cassiomorais/onramp/internal/repository/postgres"
	"github.com/cassiomorais/onramp/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool                *pgxpool.Pool
	RedisClient         *redis.Client
	SessionService      *service.SessionService
	VerificationService *service.VerificationService
	IdempotencyRepo     *postgres.IdempotencyRepository
	Metrics             *observability.Metrics
	ServerConfig        config.ServerConfig
	ProviderName        string
	JWTSecret           string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.ServerConfig.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.ServerConfig.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	sessionH := NewSessionController(deps.SessionService)
	verifyH := NewVerifyController(deps.VerificationService, deps.Metrics, deps.ProviderName)
	callbackH := NewCallbackController(deps.SessionService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// Redirect callbacks are hit by the user's browser, not by API clients.
	// No auth, rate limited.
	r.Route("/callbacks/onramp", func(r chi.Router) {
		r.Use(customMW.RateLimit(deps.ServerConfig.RequestsPerMinute))
		r.Get("/success", callbackH.Success)
		r.Get("/failure", callbackH.Failure)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RateLimit(deps.ServerConfig.RequestsPerMinute))
		r.Use(customMW.RequireAuth(deps.JWTSecret))

		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

		// Sessions
		r.With(idempotencyMW).Post("/sessions", sessionH.Create)
		r.Get("/sessions/{id}", sessionH.Get)
		r.Get("/sessions", sessionH.List)
		r.Post("/sessions/{id}/widget/open", sessionH.OpenWidget)
		r.Post("/sessions/{id}/widget/close", sessionH.CloseWidget)

		// Verification proxy
		r.Get("/transactions/verify", verifyH.Verify)
	})

	return r
}

package api

import (
	"github.com/ayo6706/paynxt/internal/api/handler"
	"github.com/ayo6706/paynxt/internal/api/middleware"
	"github.com/ayo6706/paynxt/internal/api/spec"
	"github.com/ayo6706/paynxt/internal/config"
	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/ayo6706/paynxt/internal/idempotency"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services are the core operations the HTTP adapter exposes.
type Services struct {
	Accounts    *service.AccountService
	Transfers   *service.TransferService
	PayRequests *service.PayRequestService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	ledger    handler.Pinger
	idemStore *idempotency.Store
	redis     redis.Cmdable
	services  Services
}

// NewRouter wires handlers over the services. idemStore may be nil, which
// disables replay for mutating routes; redis may be nil.
func NewRouter(cfg *config.Config, logger *zap.Logger, ledger handler.Pinger, idemStore *idempotency.Store, redis redis.Cmdable, services Services) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		ledger:    ledger,
		idemStore: idemStore,
		redis:     redis,
		services:  services,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.ledger, api.redis)
	authHandler := handler.NewAuthHandler(api.services.Accounts, api.cfg.JWTTTL)
	userHandler := handler.NewUserHandler(api.services.Accounts)
	transactionHandler := handler.NewTransactionHandler(api.services.Transfers)
	payRequestHandler := handler.NewPayRequestHandler(api.services.PayRequests)

	// Ops
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/auth/register", authHandler.Register)
		r.Post("/v1/auth/login", authHandler.Login)
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))
		idempotent := middleware.IdempotencyMiddleware(api.idemStore, api.logger)
		merchantOnly := middleware.RequireRole(domain.RoleMerchant)
		consumerOnly := middleware.RequireRole(domain.RoleConsumer)

		// Users
		r.Get("/v1/users/profile", userHandler.Profile)
		r.Get("/v1/users/balance", userHandler.Balance)

		// Transactions
		r.With(idempotent).Post("/v1/transactions/transfer", transactionHandler.Transfer)
		r.Get("/v1/transactions/history", transactionHandler.History)
		r.Get("/v1/transactions/{id}", transactionHandler.Get)

		// Pay requests
		r.With(merchantOnly, idempotent).Post("/v1/pay-requests", payRequestHandler.Create)
		r.With(merchantOnly).Get("/v1/pay-requests/sent", payRequestHandler.ListSent)
		r.With(consumerOnly).Get("/v1/pay-requests/received", payRequestHandler.ListReceived)
		r.Get("/v1/pay-requests/{id}", payRequestHandler.Get)
		r.With(consumerOnly).Patch("/v1/pay-requests/{id}/approve", payRequestHandler.Approve)
		r.With(consumerOnly).Patch("/v1/pay-requests/{id}/reject", payRequestHandler.Reject)
	})

	return r
}

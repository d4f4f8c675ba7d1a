package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/config"
	httpHandler "github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/http/handler"
	pgStorage "github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/storage/postgres"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/storage/postgres/migrations"
	redisStorage "github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/storage/redis"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/service"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting OpenBazaar order service")

	ctx := context.Background()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if err := migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}
	log.Info().Msg("Migrations applied")

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Repositories
	orderRepo := pgStorage.NewOrderRepo(pool)
	txRepo := pgStorage.NewPaymentTxRepo(pool)
	profileRepo := pgStorage.NewProfileRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	webhookRepo := pgStorage.NewWebhookRepo(pool)
	transactor := pgStorage.NewTransactor(pool, cfg.Database.LockTimeout)

	// Redis stores
	fundingCache := redisStorage.NewFundingCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Business services
	webhookSvc := service.NewWebhookService(cfg.Webhook, sigSvc, nil, logger.Component(log, "webhook")).
		WithDeliveryLog(webhookRepo)
	orderSvc := service.NewOrderService(
		orderRepo,
		txRepo,
		fundingCache,
		webhookSvc,
		transactor,
		cfg.Funding.CacheTTL,
		logger.Component(log, "orders"),
	)
	authSvc := service.NewAuthService(profileRepo, hashSvc, tokenSvc)
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))

	if cfg.Feed.AccessKey == "" || cfg.Feed.SecretKey == "" {
		log.Warn().Msg("Feed credentials not configured, feed routes will reject every request")
	}

	if doc, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetAPIDoc(doc)
		log.Info().Msg("OpenAPI document served at /docs")
	} else {
		log.Warn().Err(err).Msg("OpenAPI document not found, /docs will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Mode:           cfg.Server.Mode,
		AuthSvc:        authSvc,
		OrderSvc:       orderSvc,
		SigSvc:         sigSvc,
		NonceStore:     nonceStore,
		TokenSvc:       tokenSvc,
		Feed:           cfg.Feed,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{
			pgStorage.NewHealthCheck(pool),
			redisStorage.NewHealthCheck(rdb),
		},
		AuditSvc: auditSvc,
		Logger:   log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// migrate applies the schema on a single pooled connection so the advisory
// lock and the DDL share one session.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return migrations.Apply(ctx, conn)
}

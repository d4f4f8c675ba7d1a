package handler

import (
	"github.com/bazaar-io-st/openbazaar-desktop/config"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/http/middleware"
	redisStore "github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/storage/redis"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Mode           string // gin mode; release when empty
	AuthSvc        ports.AuthService
	OrderSvc       ports.OrderService
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	Feed           config.FeedConfig
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	docs := r.Group("/docs")
	{
		docs.GET("", APIDocUI)
		docs.GET("/openapi.yaml", APIDoc)
	}

	rules := middleware.DefaultRateLimitRules()

	// rl returns the limiter for group, or a no-op when limiting is disabled.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated routes (profile) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	orderHandler := NewOrderHandler(deps.OrderSvc)
	orders := v1.Group("/orders", jwtAuth)
	{
		orders.GET("", rl("orders_read"), orderHandler.ListOrders)
		orders.GET("/:id", rl("orders_read"), orderHandler.GetOrder)
		orders.GET("/:id/funding", rl("orders_read"), orderHandler.GetFunding)
		orders.POST("/:id/cancel", rl("orders_action"), orderHandler.CancelOrder)
		orders.POST("/:id/dispute", rl("orders_action"), orderHandler.OpenDispute)
	}

	// --- HMAC-authenticated routes (wallet feed) ---
	feedAuth := middleware.FeedAuth(deps.Feed.AccessKey, deps.Feed.SecretKey, deps.SigSvc, deps.NonceStore, deps.Logger)
	feedHandler := NewFeedHandler(deps.OrderSvc)
	feed := v1.Group("/feed", rl("feed"), feedAuth)
	{
		feed.PUT("/orders/:id", feedHandler.SyncOrder)
		feed.PUT("/orders/:id/transactions", feedHandler.IngestTransactions)
	}

	return r
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/application/middleware"
	domainRepo "github.com/goalforge/entitlement/internal/domain/repository"
	"github.com/goalforge/entitlement/internal/domain/service"
	"github.com/goalforge/entitlement/internal/domain/valueobject"
	"github.com/goalforge/entitlement/internal/infrastructure/config"
	"github.com/goalforge/entitlement/internal/infrastructure/external/purchases"
	"github.com/goalforge/entitlement/internal/infrastructure/logging"
	"github.com/goalforge/entitlement/internal/infrastructure/persistence/pool"
	"github.com/goalforge/entitlement/internal/infrastructure/persistence/repository"
	app_handler "github.com/goalforge/entitlement/internal/interfaces/http/handlers"
	worker_tasks "github.com/goalforge/entitlement/internal/worker/tasks"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logging.Init(&cfg.Sentry); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Sync()

	// Environment is classified exactly once per process; everything downstream
	// consumes this value.
	env := valueobject.ClassifyEnvironment(cfg.Environment)

	logging.Logger.Info("Starting entitlement API server",
		zap.Int("port", cfg.Server.Port),
		zap.String("environment", env.String()),
	)

	ctx := context.Background()

	// Initialize Redis when configured; it backs the cache fallback, rate
	// limiting, the JWT blocklist and the event queue.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logging.Logger.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logging.Logger.Fatal("Failed to ping Redis", zap.Error(err))
		}
	}

	// Pick the entitlement cache backing: Postgres when available, Redis next,
	// in-memory only outside production.
	var cache domainRepo.CacheRepository
	switch {
	case cfg.Database.URL != "":
		dbPool, err := pool.NewPool(ctx, cfg.Database)
		if err != nil {
			logging.Logger.Fatal("Failed to create database pool", zap.Error(err))
		}
		defer pool.Close(dbPool)

		if err := pool.Ping(ctx, dbPool); err != nil {
			logging.Logger.Fatal("Failed to ping database", zap.Error(err))
		}
		if err := repository.EnsureSchema(ctx, dbPool); err != nil {
			logging.Logger.Fatal("Failed to ensure cache schema", zap.Error(err))
		}
		cache = repository.NewPostgresCacheRepository(dbPool)

	case redisClient != nil:
		cache = repository.NewRedisCacheRepository(redisClient)

	default:
		if !env.AllowsSimulatedPurchases() {
			logging.Logger.Fatal("Production requires a durable entitlement cache")
		}
		logging.Logger.Warn("No durable cache configured, entitlement state will not survive restarts")
		cache = repository.NewMemoryCacheRepository()
	}

	// Pick the purchase platform: the hosted API when configured, otherwise the
	// cache-backed simulation (never substituted in production).
	var remote service.RemoteSource
	var mockSource *purchases.MockSource
	if cfg.Purchases.APIURL != "" {
		apple := purchases.NewAppleVerifier(cfg.Purchases.AppleSharedSecret)
		google := purchases.NewGoogleVerifier(cfg.Purchases.GoogleKeyJSON)
		remote = purchases.NewClient(cfg.Purchases, apple, google, logging.WithComponent("purchases"))
	} else {
		if !env.AllowsSimulatedPurchases() {
			logging.Logger.Fatal("Production requires a configured purchase platform")
		}
		mockSource = purchases.NewMockSource(cache, cfg.Purchases.EntitlementKey, logging.WithComponent("mock_purchases"))
		remote = mockSource
	}

	// Lifecycle events go through the queue when Redis is present, otherwise to
	// the log.
	var sink service.EventSink
	if redisClient != nil {
		asynqClient := asynq.NewClientFromRedisClient(redisClient)
		defer asynqClient.Close()
		sink = worker_tasks.NewEventEnqueuer(asynqClient, logging.WithComponent("event_enqueuer"))
	} else {
		sink = service.NewLogSink(logging.WithComponent("event_log"))
	}

	reconciler := service.NewReconciler(env, cache, remote, sink, logging.WithComponent("reconciler"), service.ReconcilerConfig{
		EntitlementKey: cfg.Purchases.EntitlementKey,
		TrialDuration:  cfg.Trial.Duration,
		ReevalInterval: cfg.Trial.ReevalInterval,
	})
	defer reconciler.Close()

	// Hydration publishes the locally derived status immediately; the remote
	// answer is folded in by the background check below.
	if err := reconciler.Hydrate(ctx); err != nil {
		logging.CaptureError(err, "purchase platform initialization failed, serving local state")
	}
	go func() {
		if err := reconciler.CheckStatus(context.Background()); err != nil {
			logging.Logger.Warn("initial remote status check failed", zap.Error(err))
		}
	}()

	// Initialize middleware
	jwtMiddleware := middleware.NewJWTMiddleware(cfg.JWT.Secret, redisClient, cfg.JWT.AccessTTL, cfg.JWT.Issuer)
	rateLimiter := middleware.NewRateLimiter(redisClient, true) // fail open

	// Initialize handlers
	entitlementHandler := app_handler.NewEntitlementHandler(reconciler)
	devHandler := app_handler.NewDevHandler(reconciler, mockSource)

	// Setup Gin router
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		logging.RequestMiddleware(logging.Logger),
	)

	// Health check endpoint (no auth required)
	router.GET("/health", entitlementHandler.Health)

	// API v1 routes (require JWT)
	v1 := router.Group("/v1")
	v1.Use(jwtMiddleware.Authenticate())
	{
		v1.GET("/status",
			rateLimiter.Middleware(middleware.ByUserID, middleware.PollingLimit),
			entitlementHandler.Status,
		)
		v1.GET("/features", entitlementHandler.Features)
		v1.GET("/offerings", entitlementHandler.Offerings)
		v1.POST("/trial",
			rateLimiter.Middleware(middleware.ByUserID, middleware.DefaultLimit),
			entitlementHandler.StartTrial,
		)
		v1.POST("/purchase",
			rateLimiter.Middleware(middleware.ByUserID, middleware.DefaultLimit),
			entitlementHandler.Purchase,
		)
		v1.POST("/restore",
			rateLimiter.Middleware(middleware.ByUserID, middleware.DefaultLimit),
			entitlementHandler.Restore,
		)
		v1.POST("/refresh",
			rateLimiter.Middleware(middleware.ByUserID, middleware.DefaultLimit),
			entitlementHandler.Refresh,
		)
	}

	// Dev/test surface, only mounted outside production
	if env.AllowsDevSurface() {
		dev := router.Group("/dev")
		dev.Use(middleware.DevGate(env, cfg.DevToken))
		{
			dev.POST("/reset", devHandler.Reset)
			dev.POST("/cancel-subscription", devHandler.CancelSubscription)
			dev.POST("/expire-trial", devHandler.ExpireTrial)
			dev.POST("/cancel-next-purchase", devHandler.CancelNextPurchase)
		}
	}

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	go func() {
		logging.Logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logging.Logger.Info("Server exited")
}

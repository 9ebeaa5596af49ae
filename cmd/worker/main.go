package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/infrastructure/config"
	"github.com/goalforge/entitlement/internal/infrastructure/external/analytics"
	"github.com/goalforge/entitlement/internal/infrastructure/logging"
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

	logging.Logger.Info("Starting entitlement event worker")

	if cfg.Redis.URL == "" {
		logging.Logger.Fatal("REDIS_URL is required for the worker")
	}

	ctx := context.Background()

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logging.Logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	opts.PoolSize = cfg.Redis.PoolSize
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logging.Logger.Fatal("Failed to ping Redis", zap.Error(err))
	}

	analyticsClient := analytics.NewClient(cfg.Analytics, logging.WithComponent("analytics"))
	taskHandlers := worker_tasks.NewTaskHandlers(analyticsClient, redisClient)

	// Initialize Asynq server
	server := asynq.NewServerFromRedisClient(redisClient, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			// Exponential backoff: 2^n seconds
			return time.Duration(1<<uint(n)) * time.Second
		},
	})

	// Register task handlers
	mux := asynq.NewServeMux()
	worker_tasks.RegisterHandlers(mux, taskHandlers)

	// Start server in background
	if err := server.Start(mux); err != nil {
		logging.Logger.Fatal("Failed to start worker", zap.Error(err))
	}

	// Register scheduled tasks
	scheduler := asynq.NewSchedulerFromRedisClient(redisClient, nil)
	worker_tasks.RegisterScheduledTasks(scheduler)

	if err := scheduler.Start(); err != nil {
		logging.Logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	logging.Logger.Info("Worker started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Logger.Info("Shutting down worker...")

	scheduler.Shutdown()
	server.Shutdown()

	logging.Logger.Info("Worker exited")
}

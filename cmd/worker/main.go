package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/strideapp/stride/internal/config"
	"github.com/strideapp/stride/internal/database"
	"github.com/strideapp/stride/internal/logger"
	"github.com/strideapp/stride/internal/models"
	"github.com/strideapp/stride/internal/queue"
	"github.com/strideapp/stride/internal/ratelimit"
	"github.com/strideapp/stride/internal/services/ai"
	"github.com/strideapp/stride/internal/summary"
	"github.com/strideapp/stride/internal/workers"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.RabbitMQURL == "" {
		log.Fatal("RABBITMQ_URL is required for the worker")
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
	)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	goalRepo := database.NewGoalRepository(db)
	entryRepo := database.NewProgressEntryRepository(db)
	ratelimitConfigRepo := database.NewRatelimitConfigRepository(db)

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	if cfg.OpenAIKey == "" {
		zapLogger.Fatal("openai_api_key_required_for_worker")
	}
	provider := ai.NewOpenAIProviderWithLogger(cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModel, zapLogger, debugMode)

	// The worker enforces the same summary rate limit as the API, sharing
	// the Redis counters.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("invalid_redis_url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	summaryRate := cfg.SummaryRate
	if dbCfg, err := ratelimitConfigRepo.Get(context.Background(), models.RatelimitKeySummary); err != nil {
		zapLogger.Warn("failed_to_load_summary_rate_from_db_using_default", zap.Error(err))
	} else if dbCfg != nil && dbCfg.Rate != "" {
		summaryRate = dbCfg.Rate
	}
	summaryLimiter, err := ratelimit.NewRedisLimiter(redisClient, summaryRate)
	if err != nil {
		zapLogger.Fatal("invalid_summary_rate", zap.Error(err), zap.String("rate", summaryRate))
	}

	// The worker's summary service gets no queue: a job being processed here
	// must generate inline, never re-enqueue itself through Trigger.
	summaryService := summary.New(goalRepo, entryRepo, provider, summaryLimiter, nil, zapLogger)
	summarizer := workers.NewSummarizer(summaryService, jobQueue, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// DLQ garbage collector
	dlqGC := queue.NewGarbageCollector(jobQueue, 1*time.Hour, 24*time.Hour, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	go func() {
		zapLogger.Info("worker_started_consuming")
		if err := summarizer.Run(ctx, jobQueue, cfg.RabbitMQPrefetch); err != nil && err != context.Canceled {
			zapLogger.Error("worker_stopped_with_error", zap.Error(err))
		}
	}()

	<-sigChan
	zapLogger.Info("shutdown_signal_received")
	cancel()

	zapLogger.Info("worker_stopped")
}

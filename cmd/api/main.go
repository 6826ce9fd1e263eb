package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/parleyai/parley-platform/cmd/mainconfig"
	"github.com/parleyai/parley-platform/internal/api/router"
	"github.com/parleyai/parley-platform/internal/chatbot"
	appconfig "github.com/parleyai/parley-platform/internal/config"
	"github.com/parleyai/parley-platform/internal/http/handlers"
	"github.com/parleyai/parley-platform/internal/notify"
	"github.com/parleyai/parley-platform/internal/observability/metrics"
	"github.com/parleyai/parley-platform/internal/tenancy"
	"github.com/parleyai/parley-platform/internal/training"
	"github.com/parleyai/parley-platform/internal/webchat"
	"github.com/parleyai/parley-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting parley-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// The conversation log uses database/sql; everything else rides pgx.
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	catalog := chatbot.NewPgxCatalogStore(pool, otel.Tracer("parley-platform"))
	conversations := chatbot.NewSQLConversationStore(sqlDB)
	tenants := tenancy.NewStore(pool)

	var cache chatbot.ContextCache
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, context caching disabled", "error", err)
		} else {
			cache = chatbot.NewRedisContextCache(client, cfg.ContextTTL)
		}
		cancel()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	embedder, err := mainconfig.BuildEmbedder(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build embedder", "error", err)
		os.Exit(1)
	}
	artifacts, err := mainconfig.BuildArtifactStore(cfg, awsCfg)
	if err != nil {
		logger.Error("failed to build artifact store", "error", err)
		os.Exit(1)
	}
	recognizer := mainconfig.BuildRecognizer(cfg, awsCfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	chatMetrics := metrics.NewChatMetrics(registry)
	trainingMetrics := metrics.NewTrainingMetrics(registry)

	deps := chatbot.Deps{
		Catalog:       catalog,
		Conversations: conversations,
		Cache:         cache,
		Embedder:      embedder,
		Recognizer:    recognizer,
		Artifacts:     artifacts,
		Metrics:       chatMetrics,
		Logger:        logger,
	}
	services := chatbot.NewRegistry(func(ctx context.Context, botID uuid.UUID) (*chatbot.Service, error) {
		return chatbot.NewService(ctx, botID, deps)
	})

	trainerFactory := func(ctx context.Context, botID uuid.UUID) (training.Trainer, error) {
		svc, err := chatbot.NewTrainingService(ctx, botID, deps)
		if err != nil {
			// The admin endpoint parked the bot in the training status; put it
			// back so a retry stays possible.
			if revertErr := catalog.UpdateBotStatus(ctx, botID, chatbot.BotStatusInactive, ""); revertErr != nil {
				logger.Error("failed to revert bot status", "bot_id", botID, "error", revertErr)
			}
			return nil, err
		}
		return svc, nil
	}
	notifier := notify.NewService(buildEmailSender(cfg, awsCfg, logger), notify.NewPGDirectory(pool), logger)

	// Memory-queue mode runs training inside this process; SQS mode hands it
	// to the training-worker binary.
	var publisher *training.Publisher
	var worker *training.Worker
	var jobs handlers.JobReader
	if cfg.UseMemoryQueue || cfg.TrainingQueueURL == "" {
		logger.Info("training runs in-process via memory queue")
		queue := training.NewMemoryQueue(0)
		store := training.NewPGJobStore(pool)
		jobs = store
		publisher = training.NewPublisher(queue, store, logger)
		worker = training.NewWorker(trainerFactory, queue, store, logger,
			training.WithWorkerCount(cfg.WorkerCount),
			training.WithNotifier(notifier),
			training.WithMetrics(trainingMetrics),
		)
		worker.Start(ctx)
	} else {
		queue := training.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TrainingQueueURL)
		store := training.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.TrainingJobsTable, logger)
		jobs = store
		publisher = training.NewPublisher(queue, store, logger)
	}

	chatHandler := handlers.NewChatHandler(services, tenants, logger)
	adminHandler := handlers.NewAdminHandler(catalog, publisher, jobs, services, registry, logger)
	webChat := webchat.NewHandler(func(ctx context.Context, botID uuid.UUID) (webchat.ChatService, error) {
		return services.ServiceFor(ctx, botID)
	}, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		AdminHandler:       adminHandler,
		WebChat:            webChat,
		OrgResolver:        tenants,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if worker != nil {
		if err := worker.Shutdown(shutdownCtx); err != nil {
			logger.Error("training worker forced to shutdown", "error", err)
		}
	}

	logger.Info("server stopped")
}

func buildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if cfg.SendGridAPIKey != "" {
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if cfg.SESFromEmail != "" {
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	return notify.NewStubEmailSender(logger)
}

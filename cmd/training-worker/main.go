package main

import (
	"context"
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
	"go.opentelemetry.io/otel"

	"github.com/parleyai/parley-platform/cmd/mainconfig"
	"github.com/parleyai/parley-platform/internal/chatbot"
	appconfig "github.com/parleyai/parley-platform/internal/config"
	"github.com/parleyai/parley-platform/internal/notify"
	"github.com/parleyai/parley-platform/internal/observability/metrics"
	"github.com/parleyai/parley-platform/internal/training"
	"github.com/parleyai/parley-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting parley-platform training worker",
		"env", cfg.Env,
		"workers", cfg.WorkerCount,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if cfg.TrainingQueueURL == "" {
		logger.Error("TRAINING_QUEUE_URL is required; in-process training uses the API binary instead")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

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

	catalog := chatbot.NewPgxCatalogStore(pool, otel.Tracer("parley-platform"))
	deps := chatbot.Deps{
		Catalog:       catalog,
		Conversations: chatbot.NewSQLConversationStore(sqlDB),
		Embedder:      embedder,
		Recognizer:    mainconfig.BuildRecognizer(cfg, awsCfg),
		Artifacts:     artifacts,
		Logger:        logger,
	}
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	trainingMetrics := metrics.NewTrainingMetrics(registry)

	queue := training.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TrainingQueueURL)
	jobs := training.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.TrainingJobsTable, logger)
	notifier := notify.NewService(buildEmailSender(cfg, awsCfg, logger), notify.NewPGDirectory(pool), logger)

	worker := training.NewWorker(trainerFactory, queue, jobs, logger,
		training.WithWorkerCount(cfg.WorkerCount),
		training.WithNotifier(notifier),
		training.WithMetrics(trainingMetrics),
	)
	worker.Start(ctx)

	// Health and metrics only; the worker takes no application traffic.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadTimeout: 10 * time.Second}
	go func() {
		logger.Info("worker metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if err := worker.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker forced to shutdown", "error", err)
	}

	logger.Info("worker stopped")
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

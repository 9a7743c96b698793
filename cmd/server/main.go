package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxwatch/voxwatch/internal"
	"github.com/voxwatch/voxwatch/internal/consumer"
	"github.com/voxwatch/voxwatch/internal/flags"
	"github.com/voxwatch/voxwatch/internal/handler"
	"github.com/voxwatch/voxwatch/internal/metrics"
	"github.com/voxwatch/voxwatch/internal/middleware"
	"github.com/voxwatch/voxwatch/internal/queue"
	"github.com/voxwatch/voxwatch/internal/quota"
	"github.com/voxwatch/voxwatch/internal/repository"
	"github.com/voxwatch/voxwatch/internal/service"
	"github.com/voxwatch/voxwatch/internal/storage"
	"github.com/voxwatch/voxwatch/internal/transcribe"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("database ready")

	// Initialize repository
	repo := repository.New(db)

	// Initialize providers
	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	q, err := newQueue(cfg, logger)
	if err != nil {
		return fmt.Errorf("queue initialization failed: %w", err)
	}

	flagClient, err := newFlags(cfg, logger)
	if err != nil {
		return fmt.Errorf("flags initialization failed: %w", err)
	}

	transcriber, err := newTranscriber(cfg, logger)
	if err != nil {
		return fmt.Errorf("transcriber initialization failed: %w", err)
	}

	// Initialize services
	gate := quota.NewGate(repo, flagClient, logger)
	callService := service.NewCallService(service.CallServiceConfig{
		Store:              repo,
		Gate:               gate,
		Queue:              q,
		Storage:            store,
		Transcriber:        transcriber,
		Logger:             logger,
		AudioFetchMaxBytes: cfg.AudioFetchMaxBytes,
	})

	// Start the queue consumer
	var queueConsumer *consumer.Consumer
	if cfg.ConsumerEnabled {
		queueConsumer, err = consumer.New(q, callService, consumer.Config{
			Concurrency:    cfg.ConsumerConcurrency,
			PollWait:       cfg.ConsumerPollWait,
			IdleDelay:      cfg.ConsumerIdleDelay,
			ProcessTimeout: cfg.ConsumerProcessTimeout,
			ShutdownWait:   cfg.ConsumerShutdownWait,
		}, logger)
		if err != nil {
			return fmt.Errorf("consumer initialization failed: %w", err)
		}
		queueConsumer.Start(ctx)
	}

	// Initialize middleware
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	apiKeyMw := middleware.NewAPIKeyMiddleware(repo, logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// Initialize handlers
	uploadHandler := handler.NewUploadHandler(callService, logger)
	healthHandler := handler.NewHealthHandler(db)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	apiStack := middleware.Stack(apiKeyMw.RequireAccount)
	mux.Handle("POST /upload-call", apiStack(http.HandlerFunc(uploadHandler.UploadCall)))

	// Serve archived audio when using local storage
	if cfg.StorageProvider == string(storage.ProviderLocal) {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	root := middleware.Stack(metrics.Middleware, loggingMw.Handler)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if queueConsumer != nil {
		queueConsumer.Stop()
	}

	logger.Info("graceful shutdown complete")
	return nil
}

// newStorage selects the storage provider from configuration.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case string(storage.ProviderR2):
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	case string(storage.ProviderLocal):
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.StorageProvider)
	}
}

// newQueue selects the queue provider from configuration.
func newQueue(cfg *internal.Config, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case string(queue.ProviderSQS):
		return queue.NewSQSQueue(queue.SQSConfig{
			QueueURL:        cfg.SQSQueueURL,
			Region:          cfg.SQSRegion,
			AccessKeyID:     cfg.SQSAccessKeyID,
			SecretAccessKey: cfg.SQSSecretAccessKey,
		}, logger)
	case string(queue.ProviderRedis):
		return queue.NewRedisQueue(queue.RedisConfig{
			Addr:              cfg.RedisAddr,
			Password:          cfg.RedisPassword,
			Key:               cfg.RedisQueueKey,
			VisibilityTimeout: cfg.RedisVisibilityTimeout,
			MaxDeliveries:     cfg.RedisMaxDeliveries,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown queue provider %q", cfg.QueueProvider)
	}
}

// newFlags selects the feature flag provider from configuration.
func newFlags(cfg *internal.Config, logger *slog.Logger) (flags.Client, error) {
	switch cfg.FlagProvider {
	case string(flags.ProviderPostHog):
		return flags.NewPostHogClient(flags.PostHogConfig{
			APIKey: cfg.PostHogAPIKey,
			Host:   cfg.PostHogHost,
		}, logger)
	case string(flags.ProviderStatic):
		return flags.NewStaticClient(cfg.EnabledFlags), nil
	default:
		return nil, fmt.Errorf("unknown flag provider %q", cfg.FlagProvider)
	}
}

// newTranscriber selects the transcription provider from configuration.
func newTranscriber(cfg *internal.Config, logger *slog.Logger) (transcribe.Transcriber, error) {
	switch cfg.Transcriber {
	case string(transcribe.ProviderOpenAI):
		return transcribe.NewOpenAITranscriber(transcribe.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			MaxRetries: cfg.TranscribeMaxRetry,
			RetryDelay: cfg.TranscribeBaseDelay,
			Timeout:    cfg.TranscribeTimeout,
		}, logger)
	case string(transcribe.ProviderMock):
		return transcribe.NewMockTranscriber(), nil
	default:
		return nil, fmt.Errorf("unknown transcriber %q", cfg.Transcriber)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

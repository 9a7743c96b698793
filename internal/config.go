package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Work queue configuration
	QueueProvider string // "sqs" or "redis"

	// SQS (production)
	SQSQueueURL        string
	SQSRegion          string
	SQSAccessKeyID     string
	SQSSecretAccessKey string

	// Redis queue (development / self-hosted)
	RedisAddr              string
	RedisPassword          string
	RedisQueueKey          string
	RedisVisibilityTimeout time.Duration
	RedisMaxDeliveries     int

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL for accessing local files

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	// Consumer Configuration
	ConsumerEnabled        bool
	ConsumerConcurrency    int
	ConsumerPollWait       time.Duration // long-poll wait when receiving
	ConsumerIdleDelay      time.Duration // delay between poll cycles
	ConsumerProcessTimeout time.Duration // per-job deadline
	ConsumerShutdownWait   time.Duration

	// Transcription Provider Configuration
	Transcriber         string // "openai" or "mock"
	OpenAIAPIKey        string
	OpenAIModel         string
	TranscribeMaxRetry  int
	TranscribeBaseDelay time.Duration
	TranscribeTimeout   time.Duration

	// Feature flag provider
	FlagProvider  string // "posthog" or "static"
	PostHogAPIKey string
	PostHogHost   string
	EnabledFlags  []string // flags forced on by the static provider

	// Maximum bytes pulled from a caller-supplied audio URL
	AudioFetchMaxBytes int64

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Queue defaults to redis for development
		QueueProvider:      getEnv("QUEUE_PROVIDER", "redis"),
		SQSQueueURL:        getEnv("SQS_QUEUE_URL", ""),
		SQSRegion:          getEnv("SQS_REGION", "us-east-1"),
		SQSAccessKeyID:     getEnv("SQS_ACCESS_KEY_ID", ""),
		SQSSecretAccessKey: getEnv("SQS_SECRET_ACCESS_KEY", ""),

		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisQueueKey:          getEnv("REDIS_QUEUE_KEY", "voxwatch:calls"),
		RedisVisibilityTimeout: getEnvDuration("REDIS_VISIBILITY_TIMEOUT", 2*time.Minute),
		RedisMaxDeliveries:     getEnvInt("REDIS_MAX_DELIVERIES", 5),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		// Consumer defaults
		ConsumerEnabled:        getEnvBool("CONSUMER_ENABLED", true),
		ConsumerConcurrency:    getEnvInt("CONSUMER_CONCURRENCY", 5),
		ConsumerPollWait:       getEnvDuration("CONSUMER_POLL_WAIT", 5*time.Second),
		ConsumerIdleDelay:      getEnvDuration("CONSUMER_IDLE_DELAY", 1*time.Second),
		ConsumerProcessTimeout: getEnvDuration("CONSUMER_PROCESS_TIMEOUT", 10*time.Minute),
		ConsumerShutdownWait:   getEnvDuration("CONSUMER_SHUTDOWN_WAIT", 30*time.Second),

		// Transcription defaults
		Transcriber:         getEnv("TRANSCRIBER", "mock"),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "whisper-1"),
		TranscribeMaxRetry:  getEnvInt("TRANSCRIBE_MAX_RETRIES", 3),
		TranscribeBaseDelay: getEnvDuration("TRANSCRIBE_RETRY_BASE_DELAY", 1*time.Second),
		TranscribeTimeout:   getEnvDuration("TRANSCRIBE_TIMEOUT", 5*time.Minute),

		// Feature flags default to the static provider with nothing enabled
		FlagProvider:  getEnv("FLAG_PROVIDER", "static"),
		PostHogAPIKey: getEnv("POSTHOG_API_KEY", ""),
		PostHogHost:   getEnv("POSTHOG_HOST", "https://app.posthog.com"),

		AudioFetchMaxBytes: getEnvInt64("AUDIO_FETCH_MAX_BYTES", 512*1024*1024),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Parse statically enabled flags from comma-separated environment variable
	if flagsStr := getEnv("ENABLED_FLAGS", ""); flagsStr != "" {
		for _, f := range strings.Split(flagsStr, ",") {
			if trimmed := strings.TrimSpace(f); trimmed != "" {
				cfg.EnabledFlags = append(cfg.EnabledFlags, trimmed)
			}
		}
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// Validate queue configuration
	switch cfg.QueueProvider {
	case "sqs":
		if cfg.SQSQueueURL == "" {
			return nil, fmt.Errorf("SQS_QUEUE_URL is required when QUEUE_PROVIDER is 'sqs'")
		}
		if cfg.SQSAccessKeyID == "" || cfg.SQSSecretAccessKey == "" {
			return nil, fmt.Errorf("SQS_ACCESS_KEY_ID and SQS_SECRET_ACCESS_KEY are required when QUEUE_PROVIDER is 'sqs'")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when QUEUE_PROVIDER is 'redis'")
		}
	default:
		return nil, fmt.Errorf("QUEUE_PROVIDER must be either 'sqs' or 'redis', got: %s", cfg.QueueProvider)
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	// Validate transcription provider configuration
	if cfg.Transcriber == "openai" {
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when TRANSCRIBER is 'openai'")
		}
	} else if cfg.Transcriber != "mock" {
		return nil, fmt.Errorf("TRANSCRIBER must be either 'openai' or 'mock', got: %s", cfg.Transcriber)
	}

	// Validate flag provider configuration
	if cfg.FlagProvider == "posthog" {
		if cfg.PostHogAPIKey == "" {
			return nil, fmt.Errorf("POSTHOG_API_KEY is required when FLAG_PROVIDER is 'posthog'")
		}
	} else if cfg.FlagProvider != "static" {
		return nil, fmt.Errorf("FLAG_PROVIDER must be either 'posthog' or 'static', got: %s", cfg.FlagProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	WorkerCount    int
	UseMemoryQueue bool

	// Redis conversation-context cache
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	ContextTTL    time.Duration

	// AWS wiring (LocalStack override supported)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// NLP capabilities
	BedrockEmbeddingModelID string
	GeminiAPIKey            string
	GeminiEmbeddingModel    string
	ComprehendLanguageCode  string
	ConfidenceThreshold     float64

	// Model artifact storage: S3 bucket when set, local directory otherwise
	ModelBucket string
	ModelsDir   string

	// Training jobs
	TrainingQueueURL  string
	TrainingJobsTable string

	// Admin endpoints
	AdminJWTSecret string

	// HTTP hardening
	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Training notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		ContextTTL:    getEnvAsDuration("CONTEXT_TTL", 24*time.Hour),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", ""),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiEmbeddingModel:    getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		ComprehendLanguageCode:  getEnv("COMPREHEND_LANGUAGE_CODE", "en"),
		ConfidenceThreshold:     getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.6),

		ModelBucket: getEnv("MODEL_BUCKET", ""),
		ModelsDir:   getEnv("MODELS_DIR", "./models"),

		TrainingQueueURL:  getEnv("TRAINING_QUEUE_URL", ""),
		TrainingJobsTable: getEnv("TRAINING_JOBS_TABLE", "training_jobs"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Parley"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, trimming blanks
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

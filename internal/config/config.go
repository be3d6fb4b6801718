package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// External chatbot backend (question generation / care suggestions).
	ChatbotBaseURL string
	ChatbotTimeout time.Duration

	// Visit session lifecycle.
	SessionTTL        time.Duration
	SessionSweepEvery time.Duration

	// Suggestion worker.
	WorkerCount     int
	SuggestionQueue int

	// Clinician auth.
	AuthJWTSecret string

	// Per-IP rate limiting. Zero disables the limiter.
	RateLimitPerSecond int
	RateLimitBurst     int

	// Storage.
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Ops email-event feed (dashboard).
	MailFeedURL           string
	MailFeedRetryInterval time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		ChatbotBaseURL: strings.TrimRight(getEnv("CHATBOT_BASE_URL", "http://localhost:9000"), "/"),
		ChatbotTimeout: getEnvAsDuration("CHATBOT_TIMEOUT", 30*time.Second),

		SessionTTL:        getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		SessionSweepEvery: getEnvAsDuration("SESSION_SWEEP_EVERY", time.Minute),

		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),
		SuggestionQueue: getEnvAsInt("SUGGESTION_QUEUE_BUFFER", 128),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		RateLimitPerSecond: getEnvAsInt("RATE_LIMIT_PER_SECOND", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 0),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		MailFeedURL:           getEnv("MAIL_FEED_URL", ""),
		MailFeedRetryInterval: getEnvAsDuration("MAIL_FEED_RETRY_INTERVAL", 5*time.Second),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
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

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/llmtxt-api/internal/version"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port        int
	BaseURL     string
	CORSOrigins []string

	// IdleTimeout of zero disables scale-to-zero idle shutdown
	IdleTimeout time.Duration

	// Crawler defaults (per-job options may override within API bounds)
	MaxPages     int
	MaxDepth     int
	MaxKB        int
	RequestDelay time.Duration
	FetchTimeout time.Duration
	UserAgent    string

	// Summarizer (optional LLM compression of oversized digests)
	AnthropicAPIKey string
	SummarizerModel string

	// Object Storage (S3-compatible)
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string
	StorageRegion    string
	StoragePrefix    string // key prefix for job objects

	// Worker
	WorkerPollInterval time.Duration
	WorkerConcurrency  int

	// Cleanup
	CleanupEnabled bool
	CleanupMaxAge  time.Duration
	CleanupInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),
		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),

		MaxPages:     getEnvInt("MAX_PAGES", 100),
		MaxDepth:     getEnvInt("MAX_DEPTH", 3),
		MaxKB:        getEnvInt("MAX_KB", 500),
		RequestDelay: getEnvDuration("REQUEST_DELAY", 1*time.Second),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		UserAgent:    getEnv("USER_AGENT", defaultUserAgent()),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		SummarizerModel: getEnv("SUMMARIZER_MODEL", "claude-3-5-haiku-latest"),

		// S3-compatible storage - uses the standard AWS env vars
		// BUCKET_NAME is what managed bucket provisioning sets automatically
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
		StoragePrefix:    getEnv("STORAGE_PREFIX", "jobs"),

		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 1*time.Second),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 5),

		CleanupEnabled:  getEnvBool("CLEANUP_ENABLED", true),
		CleanupMaxAge:   getEnvDuration("CLEANUP_MAX_AGE", 7*24*time.Hour),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour),
	}

	// Enable storage if bucket and endpoint are configured
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if cfg.MaxPages < 1 {
		return nil, fmt.Errorf("MAX_PAGES must be positive, got %d", cfg.MaxPages)
	}
	if cfg.MaxDepth < 1 {
		return nil, fmt.Errorf("MAX_DEPTH must be positive, got %d", cfg.MaxDepth)
	}
	if cfg.MaxKB < 1 {
		return nil, fmt.Errorf("MAX_KB must be positive, got %d", cfg.MaxKB)
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", cfg.WorkerConcurrency)
	}

	return cfg, nil
}

// SummarizerEnabled returns true if the LLM summarizer is configured.
func (c *Config) SummarizerEnabled() bool {
	return c.AnthropicAPIKey != ""
}

func defaultUserAgent() string {
	return fmt.Sprintf("llmtxt/%s (+https://github.com/jmylchreest/llmtxt-api)", version.Get().Short())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}

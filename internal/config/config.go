// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the cache database (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Market-feed provider
	FeedBaseURL string
	FeedAPIKey  string

	// Rate limiting. The budget is deliberately set below the provider's
	// advertised ceiling (55/min) to leave headroom for clock skew.
	MaxCallsPerWindow int
	WindowDuration    time.Duration

	// Cost of one series fetch in rate-limit units. Kept configurable so a
	// change in the upstream integration does not silently break budgeting.
	FetchCostUnits int

	// Retry policy
	RetryAttempts int
	RetryDelay    time.Duration

	// Batch orchestration
	BatchSize       int
	InterItemDelay  time.Duration
	InterBatchDelay time.Duration
	AvgItemTime     time.Duration // static per-item estimate for deadline checks

	// Cache freshness
	PlanMaxAge     time.Duration // trade-plan entries older than this are stale
	ScreenerMaxAge time.Duration // screener entries older than this are stale
	EntryTTL       time.Duration // expires_at horizon written on each refresh
	RetentionDays  int           // sweep removes entries older than this

	// Cron schedules (with-seconds format)
	ScreenerSchedule string
	PlanSchedule     string
	SweepSchedule    string

	// Scheduled-run deadlines. A run stops at a batch boundary once its
	// window is about to be exceeded; the remainder is picked up next run.
	ScreenerRunWindow time.Duration
	PlanRunWindow     time.Duration

	// How many of the most-viewed trade plans the scheduled plan refresh
	// keeps warm.
	HotListSize int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SWINGSCAN_DATA_DIR", "./data")
	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	port, err := getEnvInt("PORT", 8090)
	if err != nil {
		return nil, err
	}

	maxCalls, err := getEnvInt("FEED_MAX_CALLS_PER_MINUTE", 50)
	if err != nil {
		return nil, err
	}

	costUnits, err := getEnvInt("FEED_COST_UNITS", 5)
	if err != nil {
		return nil, err
	}

	batchSize, err := getEnvInt("REFRESH_BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}

	retentionDays, err := getEnvInt("CACHE_RETENTION_DAYS", 3)
	if err != nil {
		return nil, err
	}

	hotListSize, err := getEnvInt("PLAN_HOT_LIST_SIZE", 20)
	if err != nil {
		return nil, err
	}

	return &Config{
		DataDir:  absDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     port,
		DevMode:  getEnv("DEV_MODE", "") == "true",

		FeedBaseURL: getEnv("FEED_BASE_URL", "https://api.marketfeed.example.com"),
		FeedAPIKey:  getEnv("FEED_API_KEY", ""),

		MaxCallsPerWindow: maxCalls,
		WindowDuration:    time.Minute,
		FetchCostUnits:    costUnits,

		RetryAttempts: 2,
		RetryDelay:    3 * time.Second,

		BatchSize:       batchSize,
		InterItemDelay:  time.Second,
		InterBatchDelay: 5 * time.Second,
		AvgItemTime:     3 * time.Second,

		PlanMaxAge:     4 * time.Hour,
		ScreenerMaxAge: 24 * time.Hour,
		EntryTTL:       24 * time.Hour,
		RetentionDays:  retentionDays,

		ScreenerSchedule: getEnv("SCREENER_SCHEDULE", "0 30 22 * * MON-FRI"),
		PlanSchedule:     getEnv("PLAN_SCHEDULE", "0 0 */4 * * *"),
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "0 15 3 * * *"),

		ScreenerRunWindow: 2 * time.Hour,
		PlanRunWindow:     time.Hour,
		HotListSize:       hotListSize,
	}, nil
}

// getEnv retrieves an environment variable value with a fallback default.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default.
func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

// Package config loads environment-based configuration for the dashboard
// command.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime configuration.
type Config struct {
	// Database
	SQLiteDBPath string

	// Remote document store
	RemoteBaseURL string
	SessionFile   string
	PollInterval  time.Duration

	// View model
	LoadingTimeout    time.Duration
	UpcomingBillLimit int

	// Category rules
	CarryForwardCategories []string
	ResetCategories        []string

	// Error reporting
	SentryDSN string
}

// Load reads configuration from the environment with sensible defaults.
func Load() *Config {
	return &Config{
		SQLiteDBPath: getEnv("MONETA_DB_PATH", "./data/moneta.db"),

		RemoteBaseURL: getEnv("MONETA_REMOTE_URL", ""),
		SessionFile:   getEnv("MONETA_SESSION_FILE", ""),
		PollInterval:  getEnvDuration("MONETA_POLL_INTERVAL", 2*time.Second),

		LoadingTimeout:    getEnvDuration("MONETA_LOADING_TIMEOUT", 3*time.Second),
		UpcomingBillLimit: getEnvInt("MONETA_UPCOMING_LIMIT", 20),

		CarryForwardCategories: getEnvList("MONETA_CARRY_CATEGORIES",
			[]string{"Rent", "Utilities", "Loan", "Insurance"}),
		ResetCategories: getEnvList("MONETA_RESET_CATEGORIES",
			[]string{"Groceries", "Entertainment", "Transport"}),

		SentryDSN: getEnv("MONETA_SENTRY_DSN", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}

// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Session store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all configuration values.
type Config struct {
	// Server configuration
	Port        string
	Environment string
	LogLevel    string

	// Backend API the form submits to
	APIBaseURL string
	APITimeout time.Duration

	// Form sessions
	SessionStore string
	SessionTTL   time.Duration

	Database DatabaseConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Load reads the configuration from the environment. Callers that want a
// .env file honoured load it before calling Load.
func Load() (*Config, error) {
	apiTimeout, err := time.ParseDuration(getEnv("API_TIMEOUT", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_TIMEOUT: %w", err)
	}
	if apiTimeout < 0 {
		return nil, fmt.Errorf("invalid API_TIMEOUT: must not be negative")
	}

	sessionTTL, err := time.ParseDuration(getEnv("SESSION_TTL", "2h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	if sessionTTL <= 0 {
		return nil, fmt.Errorf("invalid SESSION_TTL: must be positive")
	}

	apiBaseURL := strings.TrimRight(strings.TrimSpace(os.Getenv("API_BASE_URL")), "/")
	if apiBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL environment variable is required")
	}

	store := strings.ToLower(getEnv("SESSION_STORE", StoreMemory))
	if store != StoreMemory && store != StorePostgres {
		return nil, fmt.Errorf("invalid SESSION_STORE %q: want %q or %q", store, StoreMemory, StorePostgres)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		APIBaseURL: apiBaseURL,
		APITimeout: apiTimeout,

		SessionStore: store,
		SessionTTL:   sessionTTL,

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "eventregform"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

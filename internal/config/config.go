package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Listener
	Host string `env:"STRATLINK_HOST" default:"127.0.0.1"`
	Port int    `env:"STRATLINK_PORT" default:"9999"`

	// Hardening (zero disables)
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" default:"0"`
	MaxConnections int           `env:"MAX_CONNECTIONS" default:"0"`
	RateLimit      float64       `env:"RATE_LIMIT" default:"0"`
	RateBurst      int           `env:"RATE_BURST" default:"20"`

	// Redis event fan-out
	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL" default:"strategy:events"`

	// Postgres journal
	DatabaseURL          string        `env:"DATABASE_URL"`
	JournalFlushInterval time.Duration `env:"JOURNAL_FLUSH_INTERVAL" default:"5s"`
	JournalBatchSize     int           `env:"JOURNAL_BATCH_SIZE" default:"500"`

	// Status HTTP endpoint
	StatusAddr string `env:"STATUS_ADDR"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// LoadConfig loads configuration from environment variables, after pulling
// in an optional .env file from the working directory.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(".env")
}

// LoadConfigFrom is LoadConfig with an explicit .env path. A missing file is
// not an error; variables already set in the environment win over the file.
func LoadConfigFrom(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	config := &Config{}

	// Listener
	loadEnvString(&config.Host, "STRATLINK_HOST", "127.0.0.1")
	if err := loadEnvInt(&config.Port, "STRATLINK_PORT", 9999); err != nil {
		return nil, err
	}

	// Hardening
	if err := loadEnvDuration(&config.IdleTimeout, "IDLE_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MaxConnections, "MAX_CONNECTIONS", 0); err != nil {
		return nil, err
	}
	if err := loadEnvFloat(&config.RateLimit, "RATE_LIMIT", 0); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.RateBurst, "RATE_BURST", 20); err != nil {
		return nil, err
	}

	// Redis
	loadEnvString(&config.RedisURL, "REDIS_URL", "")
	loadEnvString(&config.RedisChannel, "REDIS_CHANNEL", "strategy:events")

	// Journal
	loadEnvString(&config.DatabaseURL, "DATABASE_URL", "")
	if err := loadEnvDuration(&config.JournalFlushInterval, "JOURNAL_FLUSH_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.JournalBatchSize, "JOURNAL_BATCH_SIZE", 500); err != nil {
		return nil, err
	}

	// Status
	loadEnvString(&config.StatusAddr, "STATUS_ADDR", "")

	// Logging
	loadEnvString(&config.LogLevel, "LOG_LEVEL", "info")
	loadEnvString(&config.LogFormat, "LOG_FORMAT", "text")

	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var problems []string

	// port 0 is allowed: the OS picks one
	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, "STRATLINK_PORT must be between 0 and 65535")
	}
	if c.Host == "" {
		problems = append(problems, "STRATLINK_HOST must not be empty")
	}

	if c.IdleTimeout < 0 {
		problems = append(problems, "IDLE_TIMEOUT must not be negative")
	}
	if c.MaxConnections < 0 {
		problems = append(problems, "MAX_CONNECTIONS must not be negative")
	}
	if c.RateLimit < 0 {
		problems = append(problems, "RATE_LIMIT must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		problems = append(problems, "RATE_BURST must be at least 1 when RATE_LIMIT is set")
	}

	if c.DatabaseURL != "" {
		if c.JournalBatchSize < 1 {
			problems = append(problems, "JOURNAL_BATCH_SIZE must be at least 1")
		}
		if c.JournalFlushInterval <= 0 {
			problems = append(problems, "JOURNAL_FLUSH_INTERVAL must be positive")
		}
	}
	if c.RedisURL != "" && c.RedisChannel == "" {
		problems = append(problems, "REDIS_CHANNEL must not be empty when REDIS_URL is set")
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

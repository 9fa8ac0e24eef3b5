package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"STRATLINK_HOST", "STRATLINK_PORT", "IDLE_TIMEOUT", "MAX_CONNECTIONS",
	"RATE_LIMIT", "RATE_BURST", "REDIS_URL", "REDIS_CHANNEL", "DATABASE_URL",
	"JOURNAL_FLUSH_INTERVAL", "JOURNAL_BATCH_SIZE", "STATUS_ADDR",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv unsets every config key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "") // restores the original value on cleanup
		os.Unsetenv(key)
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfigFrom(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9999, cfg.Port)
	assert.Zero(t, cfg.IdleTimeout)
	assert.Zero(t, cfg.MaxConnections)
	assert.Zero(t, cfg.RateLimit)
	assert.Equal(t, 20, cfg.RateBurst)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "strategy:events", cfg.RedisChannel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.JournalFlushInterval)
	assert.Equal(t, 500, cfg.JournalBatchSize)
	assert.Empty(t, cfg.StatusAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRATLINK_HOST", "0.0.0.0")
	t.Setenv("STRATLINK_PORT", "7000")
	t.Setenv("IDLE_TIMEOUT", "90s")
	t.Setenv("MAX_CONNECTIONS", "64")
	t.Setenv("RATE_LIMIT", "2.5")
	t.Setenv("RATE_BURST", "5")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DATABASE_URL", "postgres://localhost/stratlink")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadConfigFrom(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 64, cfg.MaxConnections)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 5, cfg.RateBurst)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "postgres://localhost/stratlink", cfg.DatabaseURL)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRATLINK_PORT", "8000")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STRATLINK_PORT=7100\nREDIS_CHANNEL=desk:events\n"), 0o600))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	// the real environment wins over the file
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "desk:events", cfg.RedisChannel)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"STRATLINK_PORT", "ninety"},
		{"IDLE_TIMEOUT", "soon"},
		{"MAX_CONNECTIONS", "1.5"},
		{"RATE_LIMIT", "fast"},
		{"JOURNAL_FLUSH_INTERVAL", "5"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfigFrom(noEnvFile(t))
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Host:      "127.0.0.1",
			Port:      9999,
			RateBurst: 20,
			LogLevel:  "info",
			LogFormat: "text",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port too large", func(c *Config) { c.Port = 70000 }, "STRATLINK_PORT"},
		{"empty host", func(c *Config) { c.Host = "" }, "STRATLINK_HOST"},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -time.Second }, "IDLE_TIMEOUT"},
		{"negative max connections", func(c *Config) { c.MaxConnections = -1 }, "MAX_CONNECTIONS"},
		{"rate without burst", func(c *Config) { c.RateLimit = 1; c.RateBurst = 0 }, "RATE_BURST"},
		{"journal batch size", func(c *Config) { c.DatabaseURL = "postgres://x"; c.JournalFlushInterval = time.Second }, "JOURNAL_BATCH_SIZE"},
		{"redis without channel", func(c *Config) { c.RedisURL = "redis://x" }, "REDIS_CHANNEL"},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("aggregates problems", func(t *testing.T) {
		cfg := valid()
		cfg.Port = -1
		cfg.LogFormat = "xml"
		err := cfg.Validate()
		assert.ErrorContains(t, err, "STRATLINK_PORT")
		assert.ErrorContains(t, err, "LOG_FORMAT")
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.NewLogger(&buf)

	logger.Info("strategy_applied", "strategy_id", "equity_7")
	assert.Empty(t, buf.String())

	logger.Warn("client_idle_timeout", "client_id", "abc")
	assert.Contains(t, buf.String(), `"msg":"client_idle_timeout"`)
	assert.Contains(t, buf.String(), `"client_id":"abc"`)
}

// Package config loads server settings from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the server settings.
type Config struct {
	Port     int
	DBPath   string
	LogLevel string
	// LogFormat is "text" (colored, for terminals) or "json".
	LogFormat string
	JWTSecret string
	// AuthMode is "required" (reject requests without a valid token) or
	// "optional". Only used when JWTSecret is set.
	AuthMode string

	// RedisAddr enables cross-instance change notification when set.
	RedisAddr          string
	RedisChannelPrefix string

	SettleMaxRetries int
	// Locale used to format amounts in server logs and CLI output.
	Locale string
}

// Load reads the configuration from the environment, falling back to
// defaults for unset variables.
func Load() (*Config, error) {
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	retries, err := getEnvInt("SETTLE_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               port,
		DBPath:             getEnv("DB_PATH", "./data/settlewise.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AuthMode:           getEnv("AUTH_MODE", "required"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "settlewise:group:"),
		SettleMaxRetries:   retries,
		Locale:             getEnv("LOCALE", "en"),
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if cfg.AuthMode != "required" && cfg.AuthMode != "optional" {
		return nil, fmt.Errorf("AUTH_MODE must be required or optional, got %q", cfg.AuthMode)
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

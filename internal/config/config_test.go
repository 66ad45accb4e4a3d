package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "LOG_LEVEL", "LOG_FORMAT", "JWT_SECRET", "REDIS_ADDR", "REDIS_CHANNEL_PREFIX", "SETTLE_MAX_RETRIES", "LOCALE", "AUTH_MODE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "./data/settlewise.db", cfg.DBPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.SettleMaxRetries)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "settlewise:group:", cfg.RedisChannelPrefix)
	assert.Equal(t, "en", cfg.Locale)
	assert.Equal(t, "required", cfg.AuthMode)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SETTLE_MAX_RETRIES", "5")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOCALE", "de")
	t.Setenv("AUTH_MODE", "optional")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 5, cfg.SettleMaxRetries)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "de", cfg.Locale)
	assert.Equal(t, "optional", cfg.AuthMode)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", "PORT", "http"},
		{"non-numeric retries", "SETTLE_MAX_RETRIES", "many"},
		{"unknown log format", "LOG_FORMAT", "xml"},
		{"unknown auth mode", "AUTH_MODE", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err, "%s=%s", tt.key, tt.value)
		})
	}
}

package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nia-ro/workdesk/internal/ratelimit"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "__session", cfg.SessionCookie)
	assert.Equal(t, 120*time.Hour, cfg.SessionTTL)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 10, cfg.AuditQueue().BatchSize)
	assert.Equal(t, 5*time.Second, cfg.AuditQueue().FlushInterval)
	assert.Equal(t, 90*24*time.Hour, cfg.AuditRetention)

	budgets := cfg.RateLimitBudgets()
	assert.Equal(t, ratelimit.Budget{Requests: 5, Window: time.Minute}, budgets[ratelimit.TierAuth])
	assert.Equal(t, ratelimit.Budget{Requests: 10, Window: 10 * time.Second}, budgets[ratelimit.TierAPI])
	assert.Equal(t, ratelimit.Budget{Requests: 30, Window: time.Minute}, budgets[ratelimit.TierPublic])
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("APP_ENV", "production")
	t.Setenv("RATE_LIMIT_AUTH", "3/5m")
	t.Setenv("AUDIT_BATCH_SIZE", "25")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ratelimit.Budget{Requests: 3, Window: 5 * time.Minute}, cfg.RateLimitBudgets()[ratelimit.TierAuth])
	assert.Equal(t, 25, cfg.AuditQueue().BatchSize)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("RATE_LIMIT_API", "ten per second")
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("RATE_LIMIT_API", "10/10s")
	t.Setenv("AUDIT_BATCH_SIZE", "0")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestNilConfigFallsBackToDefaultBudgets(t *testing.T) {
	var cfg *Config
	assert.Equal(t, ratelimit.DefaultBudgets, cfg.RateLimitBudgets())
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "test"}, &buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"env":"test"`)

	buf.Reset()
	newLogger(&Config{LogFormat: "pretty"}, &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ASSISTANT_TIMEOUT", "")
	t.Setenv("DISPATCH_MAX_CHUNK", "")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 20*time.Second, cfg.Assistant.Timeout)
	assert.Equal(t, 1600, cfg.Dispatch.MaxChunk)
	assert.Equal(t, 5, cfg.Assistant.HistorySize)
	assert.Equal(t, time.Minute, cfg.Reminders.Interval)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.TrustedProxies)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ASSISTANT_TIMEOUT", "3s")
	t.Setenv("ASSISTANT_ASYNC", "false")
	t.Setenv("ADMIN_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1,10.0.0.0/8")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.Assistant.Timeout)
	assert.False(t, cfg.Assistant.Async)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AdminCORSOrigins)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.0/8"}, cfg.TrustedProxies)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DISPATCH_MAX_CHUNK", "lots")
	t.Setenv("DISPATCH_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 1600, cfg.Dispatch.MaxChunk)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.Timeout)
}

func TestLocation_InvalidFallsBackToUTC(t *testing.T) {
	cfg := &Config{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, cfg.Location())
}

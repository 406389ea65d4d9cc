package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, 25*time.Second, cfg.PollTimeout)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("POLL_TIMEOUT", "5s")
	t.Setenv("POLL_IDLE_TIMEOUT", "1s")
	t.Setenv("SEND_BUFFER", "-3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	require.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.PollTimeout)
	// idle timeout must outlive a single long-poll
	assert.Equal(t, 10*time.Second, cfg.PollIdleTimeout)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoad_Defaults no file, defaults only
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Retry.Base)
	assert.Equal(t, time.Second, cfg.Retry.Unit)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.EmptyDelay)
	assert.Equal(t, 10*time.Second, cfg.Probe.StepTimeout)
	assert.Equal(t, 512, cfg.AI.MaxTokens)
	assert.True(t, cfg.AI.CacheReadThrough)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
}

// TestLoad_FileAndEnv the file overrides defaults, env overrides the file
func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
probe:
  concurrency: 8
  step_timeout: 3s
cache:
  backend: redis
  redis_url: redis://localhost:6379/0
ai:
  provider: openrouter
  cache_read_through: false
`)
	t.Setenv("PROBE_CONCURRENCY", "16")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("OPENROUTER_API_KEY", "router-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Probe.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Probe.StepTimeout)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.False(t, cfg.AI.CacheReadThrough)
	assert.Equal(t, "router-key", cfg.AI.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisURL = ""
	cfg.Retry.MaxAttempts = 0
	cfg.AI.Provider = "unknown"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis_url")
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "ai.provider")
}

func TestRabbitMQConfig_URL(t *testing.T) {
	cfg := RabbitMQConfig{Host: "mq", Port: 5672, User: "u", Password: "p", VHost: "/"}
	assert.Equal(t, "amqp://u:p@mq:5672/", cfg.URL())

	cfg.VHost = "/checks"
	assert.Equal(t, "amqp://u:p@mq:5672/checks", cfg.URL())
}

func TestInitLogger(t *testing.T) {
	logger := InitLogger(&LogConfig{Level: "debug", Format: "json", Output: "discard"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	assert.Equal(t, io.Discard, logger.Out)

	logger = InitLogger(&LogConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

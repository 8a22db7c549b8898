package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/middleware"
	"github.com/rf-checker/rf-checker-go/internal/service"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Probe: config.ProbeConfig{Concurrency: 2, StepTimeout: time.Second},
		Retry: config.RetryConfig{MaxAttempts: 2, Base: 2, Unit: time.Millisecond},
		Cache: config.CacheConfig{Backend: "memory"},
	}
}

func TestBuild_TextOnlyCheckIsCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"**No** Russian ties."}]}}]}`)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.AI = config.AIConfig{Enabled: true, Provider: "gemini", APIKey: "k", BaseURL: server.URL, Timeout: time.Second, MaxLength: 100, CacheReadThrough: true}

	metrics := middleware.NewPrometheusMetrics(quietLogger(), "app_test", prometheus.NewRegistry())
	a, err := Build(cfg, quietLogger(), metrics)
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < 2; i++ {
		resp, err := a.Checks.Check(context.Background(), &service.CheckRequest{Text: "a forum post"})
		require.NoError(t, err)
		assert.Equal(t, "No Russian ties.", resp.Message)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestBuild_UnknownProviderDisablesGeneration(t *testing.T) {
	cfg := testConfig()
	cfg.AI = config.AIConfig{Enabled: true, Provider: "zhipu"}

	a, err := Build(cfg, quietLogger(), nil)
	require.NoError(t, err)
	defer a.Close()

	resp, err := a.Checks.Check(context.Background(), &service.CheckRequest{URLs: []string{"not a url"}})
	require.NoError(t, err)
	assert.Equal(t, service.DisabledMessage, resp.Message)
	require.Len(t, resp.URLsMetadata, 1)
	assert.Empty(t, resp.URLsMetadata[0].Domain)
	assert.NotEmpty(t, resp.URLsMetadata[0].Errors)
}

func TestBuild_BadCacheBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Backend = "etcd"

	_, err := Build(cfg, quietLogger(), nil)
	assert.Error(t, err)
}

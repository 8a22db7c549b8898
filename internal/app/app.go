package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/ai"
	"github.com/rf-checker/rf-checker-go/internal/cache"
	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/domainanalysis"
	"github.com/rf-checker/rf-checker-go/internal/middleware"
	"github.com/rf-checker/rf-checker-go/internal/retry"
	"github.com/rf-checker/rf-checker-go/internal/service"
	"github.com/rf-checker/rf-checker-go/internal/steam"
)

// App check pipeline shared by the server and the CLI
type App struct {
	Checks service.CheckService
	Policy *retry.Policy
	Store  cache.Store
}

// Build wires cache, probes, Steam and text generation from cfg.
// metrics may be nil.
func Build(cfg *config.Config, logger *logrus.Logger, metrics *middleware.PrometheusMetrics) (*App, error) {
	var (
		retryObserver retry.Observer
		cacheObserver cache.Observer
		checkObserver service.CheckObserver
	)
	if metrics != nil {
		retryObserver, cacheObserver, checkObserver = metrics, metrics, metrics
	}

	policy := retry.FromConfig(&cfg.Retry, logger, retryObserver)

	store, err := cache.New(&cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	cached := cache.NewInstrumented(store, cfg.Cache.Backend, cacheObserver)

	prober := domainanalysis.NewServiceFromConfig(&cfg.Probe, policy, cached, logger)
	if metrics != nil {
		prober.SetObserver(metrics)
	}

	var games service.GameLookup
	if cfg.Steam.Enabled {
		games = steam.NewClient(&cfg.Steam, policy, logger)
	}

	var generator service.TextGenerator
	if cfg.AI.Enabled {
		gen, err := ai.NewGeneratorFromConfig(&cfg.AI, cached, policy, logger)
		if err != nil {
			logger.WithError(err).Warn("Text generation disabled")
		} else {
			if metrics != nil {
				gen.SetObserver(metrics)
			}
			generator = gen
		}
	}

	prompts, err := ai.LoadPrompts(cfg.AI.PromptsFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load prompts, using the built-in instruction")
	}

	checks := service.NewCheckService(prober, games, generator, prompts, logger)

	logger.WithFields(logrus.Fields{
		"cache":       cfg.Cache.Backend,
		"steam":       games != nil,
		"ai":          generator != nil,
		"ai_provider": cfg.AI.Provider,
	}).Info("Check pipeline ready")

	return &App{
		Checks: service.Instrument(checks, checkObserver),
		Policy: policy,
		Store:  store,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

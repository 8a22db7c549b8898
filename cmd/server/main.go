package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/api"
	"github.com/rf-checker/rf-checker-go/internal/api/handlers"
	"github.com/rf-checker/rf-checker-go/internal/app"
	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/middleware"
	"github.com/rf-checker/rf-checker-go/internal/queue"
	"github.com/rf-checker/rf-checker-go/internal/watcher"
	"github.com/rf-checker/rf-checker-go/internal/worker"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.InitLogger(&cfg.Log)
	logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"commit":     GitCommit,
		"config":     *configPath,
	}).Info("Starting rf-checker")

	promMetrics := middleware.NewPrometheusMetrics(logger, cfg.Server.MetricsNS, nil)

	pipeline, err := app.Build(cfg, logger, promMetrics)
	if err != nil {
		logger.Fatalf("Failed to build check pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// job pool shared by the queue consumer and the inbox watcher
	files, err := worker.NewFileSink(cfg.Watcher.ResultDir, logger)
	if err != nil {
		logger.Fatalf("Failed to prepare result directory: %v", err)
	}
	sinks := worker.MultiSink{files}
	var journal *worker.JSONLSink
	if cfg.Worker.ResultsLog != "" {
		journal, err = worker.NewJSONLSink(cfg.Worker.ResultsLog)
		if err != nil {
			logger.Fatalf("Failed to open results log: %v", err)
		}
		sinks = append(sinks, journal)
		logger.Infof("Appending finished jobs to %s", cfg.Worker.ResultsLog)
	}
	runner := worker.NewCheckRunner(pipeline.Checks, sinks, logger)
	pool := worker.NewPool(cfg.Worker.Concurrency, cfg.Worker.QueueSize, runner.Handle, logger)
	pool.SetObserver(promMetrics)
	pool.Start(ctx)

	var (
		enqueuer handlers.Enqueuer
		mq       *queue.RabbitMQ
		consumer *queue.Consumer
	)
	if cfg.RabbitMQ.Enabled {
		mq, err = queue.NewRabbitMQ(cfg.RabbitMQ, pipeline.Policy.WithAttempts(10), logger)
		if err != nil {
			logger.Fatalf("Failed to init RabbitMQ: %v", err)
		}
		enqueuer = queue.NewProducer(mq, logger)

		consumer = queue.NewConsumer(mq, createQueueHandler(pool, logger), cfg.Worker.Concurrency, logger)
		if err := consumer.Start(ctx); err != nil {
			logger.Fatalf("Failed to start consumer: %v", err)
		}
	}

	var inbox *watcher.FileWatcher
	if cfg.Watcher.Enabled {
		inbox, err = watcher.NewFileWatcher(cfg.Watcher.InboxDir, "*.txt", cfg.Watcher.Debounce, watcher.NewJobHandler(pool), logger)
		if err != nil {
			logger.Fatalf("Failed to create file watcher: %v", err)
		}
		if err := inbox.Start(ctx); err != nil {
			logger.Fatalf("Failed to start file watcher: %v", err)
		}
	}

	router := api.SetupRouter(cfg, logger, pipeline.Checks, enqueuer, promMetrics)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// a check with AI retries can take minutes
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}

	if inbox != nil {
		inbox.Stop()
	}
	if consumer != nil {
		consumer.Stop()
	}
	cancel()
	pool.Stop()
	if journal != nil {
		if err := journal.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close results log")
		}
	}
	if mq != nil {
		mq.Close()
	}
	if err := pipeline.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close cache")
	}

	logger.Info("Server stopped")
}

// createQueueHandler runs each queued check on the pool and waits for it.
func createQueueHandler(pool *worker.Pool, logger *logrus.Logger) queue.CheckHandler {
	return func(ctx context.Context, msg *queue.CheckMessage) error {
		logger.WithFields(logrus.Fields{
			"check_id": msg.ID,
			"source":   msg.Source,
			"urls":     len(msg.URLs),
		}).Info("Received check from RabbitMQ, submitting to worker pool")

		return pool.SubmitAndWait(ctx, &worker.Job{
			ID:      msg.ID,
			Source:  worker.SourceQueue,
			Request: msg.Request(),
		})
	}
}

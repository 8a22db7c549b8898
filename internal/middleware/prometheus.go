package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics collector for HTTP traffic, probes, text generation,
// cache, retries and the job pool
type PrometheusMetrics struct {
	logger  *logrus.Logger
	handler http.Handler

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// checks
	checksTotal   *prometheus.CounterVec
	flaggedTotal  prometheus.Counter
	probeTotal    *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec

	// text generation
	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	// cache
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// job pool
	poolQueueDepth    prometheus.Gauge
	poolActiveWorkers prometheus.Gauge
	jobsTotal         *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec

	// retries
	retryAttemptsTotal *prometheus.CounterVec
	retrySuccessTotal  *prometheus.CounterVec
}

// NewPrometheusMetrics registers on reg, or on the default registry when reg is nil.
func NewPrometheusMetrics(logger *logrus.Logger, namespace string, reg *prometheus.Registry) *PrometheusMetrics {
	if namespace == "" {
		namespace = "rf_checker"
	}

	var (
		factory promauto.Factory
		handler http.Handler
	)
	if reg != nil {
		factory = promauto.With(reg)
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	} else {
		factory = promauto.With(prometheus.DefaultRegisterer)
		handler = promhttp.Handler()
	}

	pm := &PrometheusMetrics{
		logger:  logger,
		handler: handler,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),

		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Content checks by outcome",
			},
			[]string{"status"}, // success, invalid, failed
		),
		flaggedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flagged_domains_total",
				Help:      "Domains reported with at least one piece of evidence",
			},
		),
		probeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_steps_total",
				Help:      "Domain probe steps by status",
			},
			[]string{"step", "status"}, // status: ok, error, skipped
		),
		probeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_step_duration_seconds",
				Help:      "Domain probe step duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"step"},
		),

		generationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "text_generation_total",
				Help:      "Text generation requests by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "text_generation_duration_seconds",
				Help:      "Text generation latency in seconds, retries included",
				Buckets:   []float64{0.001, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"backend"},
		),

		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Response cache hits",
			},
			[]string{"backend"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Response cache misses",
			},
			[]string{"backend"},
		),

		poolQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_queue_size",
				Help:      "Jobs waiting for a worker",
			},
		),
		poolActiveWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_active",
				Help:      "Workers currently running a job",
			},
		),
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Pool jobs by source and status",
			},
			[]string{"source", "status"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Pool job duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"source"},
		),

		retryAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation", "attempt"},
		),
		retrySuccessTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_success_total",
				Help:      "Operations that succeeded after at least one retry",
			},
			[]string{"operation"},
		),
	}

	logger.WithField("namespace", namespace).Info("Prometheus metrics initialized")
	return pm
}

// HTTPMiddleware records count and latency per route.
func (pm *PrometheusMetrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		pm.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		pm.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposition endpoint.
func (pm *PrometheusMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pm.handler.ServeHTTP(c.Writer, c.Request)
	}
}

func (pm *PrometheusMetrics) RecordCheck(status string, flagged int) {
	pm.checksTotal.WithLabelValues(status).Inc()
	pm.flaggedTotal.Add(float64(flagged))
}

// RecordProbe implements domainanalysis.ProbeObserver.
func (pm *PrometheusMetrics) RecordProbe(step, status string, seconds float64) {
	pm.probeTotal.WithLabelValues(step, status).Inc()
	pm.probeDuration.WithLabelValues(step).Observe(seconds)
}

// RecordGeneration implements ai.GenerationObserver.
func (pm *PrometheusMetrics) RecordGeneration(backend, outcome string, seconds float64) {
	pm.generationTotal.WithLabelValues(backend, outcome).Inc()
	pm.generationDuration.WithLabelValues(backend).Observe(seconds)
}

func (pm *PrometheusMetrics) RecordCacheHit(backend string) {
	pm.cacheHits.WithLabelValues(backend).Inc()
}

func (pm *PrometheusMetrics) RecordCacheMiss(backend string) {
	pm.cacheMisses.WithLabelValues(backend).Inc()
}

func (pm *PrometheusMetrics) SetQueueDepth(n int) {
	pm.poolQueueDepth.Set(float64(n))
}

func (pm *PrometheusMetrics) SetActiveWorkers(n int) {
	pm.poolActiveWorkers.Set(float64(n))
}

// RecordJob implements worker.PoolObserver.
func (pm *PrometheusMetrics) RecordJob(source, status string, seconds float64) {
	pm.jobsTotal.WithLabelValues(source, status).Inc()
	pm.jobDuration.WithLabelValues(source).Observe(seconds)
}

// RecordRetryAttempt implements retry.Observer.
func (pm *PrometheusMetrics) RecordRetryAttempt(operation string, attempt int) {
	pm.retryAttemptsTotal.WithLabelValues(operation, strconv.Itoa(attempt)).Inc()
}

func (pm *PrometheusMetrics) RecordRetrySuccess(operation string) {
	pm.retrySuccessTotal.WithLabelValues(operation).Inc()
}

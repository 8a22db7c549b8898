package api

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/api/handlers"
	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/middleware"
	"github.com/rf-checker/rf-checker-go/internal/service"
)

const version = "1.0.0"

var registerOnce sync.Once

// RegisterValidators adds the safeurl rule to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("safeurl", func(fl validator.FieldLevel) bool {
				return service.ValidateURL(fl.Field().String()) == nil
			})
		}
	})
}

// SetupRouter promMetrics and enqueuer may be nil.
func SetupRouter(cfg *config.Config, logger *logrus.Logger, checks service.CheckService, enqueuer handlers.Enqueuer, promMetrics *middleware.PrometheusMetrics) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
		r.GET("/metrics/prometheus", promMetrics.Handler())
	}

	checkHandler := handlers.NewCheckHandler(checks, enqueuer, logger)
	streamHandler := handlers.NewProbeStreamHandler(checks, logger)

	r.GET("/ws/probe", streamHandler.Stream)

	v1 := r.Group("/api")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"version": version,
			})
		})

		v1.POST("/check", checkHandler.Check)
		v1.POST("/check/async", checkHandler.Enqueue)
		v1.POST("/probe", checkHandler.Probe)
	}

	return r
}

func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(start).Milliseconds(),
		}).Info("HTTP Request")
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/queue"
	"github.com/rf-checker/rf-checker-go/internal/service"
)

// ProbeRequest body of POST /api/probe
type ProbeRequest struct {
	URLs []string `json:"urls" binding:"required,min=1,max=10,dive,max=500,safeurl"`
}

// Enqueuer hands a check to the job queue
type Enqueuer interface {
	PublishCheck(ctx context.Context, msg *queue.CheckMessage) error
}

// CheckHandler content check endpoints
type CheckHandler struct {
	checks   service.CheckService
	enqueuer Enqueuer
	logger   *logrus.Logger
}

// NewCheckHandler enqueuer may be nil when the queue is disabled.
func NewCheckHandler(checks service.CheckService, enqueuer Enqueuer, logger *logrus.Logger) *CheckHandler {
	return &CheckHandler{
		checks:   checks,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// Check runs a full content check
// POST /api/check {"urls": [...], "game_name": "...", "text": "..."}
func (h *CheckHandler) Check(c *gin.Context) {
	var req service.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.checks.Check(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "Check failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Probe returns the evidence reports only
// POST /api/probe {"urls": [...]}
func (h *CheckHandler) Probe(c *gin.Context) {
	var req ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.checks.Probe(c.Request.Context(), req.URLs)
	if err != nil {
		h.respondError(c, err, "Probe failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"urls_metadata": results,
		"total":         len(results),
	})
}

// Enqueue publishes the check to the job queue instead of running it
// POST /api/check/async
func (h *CheckHandler) Enqueue(c *gin.Context) {
	if h.enqueuer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue is disabled"})
		return
	}

	var req service.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := &queue.CheckMessage{
		URLs:     req.URLs,
		GameName: req.GameName,
		Text:     req.Text,
		Source:   "api",
	}
	if err := h.enqueuer.PublishCheck(c.Request.Context(), msg); err != nil {
		h.respondError(c, err, "Enqueue failed")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":          msg.ID,
		"enqueued_at": msg.EnqueuedAt,
	})
}

func (h *CheckHandler) respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "check timed out"})
	case errors.Is(err, context.Canceled):
		// client went away
		c.Status(499)
	default:
		h.logger.WithError(err).Error(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/domain"
	"github.com/rf-checker/rf-checker-go/internal/service"
)

const writeWait = 10 * time.Second

// ProbeMessage one websocket frame of a probe stream
type ProbeMessage struct {
	Index  int                       `json:"index"`
	Total  int                       `json:"total"`
	Result *domain.DomainProbeResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

// ProbeStreamHandler streams one probe report per URL over a websocket
type ProbeStreamHandler struct {
	checks   service.CheckService
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

func NewProbeStreamHandler(checks service.CheckService, logger *logrus.Logger) *ProbeStreamHandler {
	return &ProbeStreamHandler{
		checks: checks,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream GET /ws/probe?url=a&url=b
func (h *ProbeStreamHandler) Stream(c *gin.Context) {
	urls := c.QueryArray("url")
	if len(urls) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one url query parameter is required"})
		return
	}
	if len(urls) > service.MaxURLs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many urls"})
		return
	}
	for _, u := range urls {
		if err := service.ValidateURL(u); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	log := h.logger.WithField("urls", len(urls))
	log.Info("Probe stream started")

	for i, u := range urls {
		msg := ProbeMessage{Index: i, Total: len(urls)}

		results, err := h.checks.Probe(ctx, []string{u})
		switch {
		case err != nil:
			msg.Error = err.Error()
		case len(results) > 0:
			msg.Result = results[0]
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.WithError(err).Warn("Failed to write probe result, closing stream")
			return
		}
		if ctx.Err() != nil {
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	log.Info("Probe stream completed")
}

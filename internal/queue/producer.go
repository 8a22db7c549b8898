package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/service"
)

// CheckMessage queued content check
type CheckMessage struct {
	ID         string    `json:"id"`
	URLs       []string  `json:"urls,omitempty"`
	GameName   string    `json:"game_name,omitempty"`
	Text       string    `json:"text,omitempty"`
	Source     string    `json:"source,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Request check request carried by the message.
func (m *CheckMessage) Request() *service.CheckRequest {
	return &service.CheckRequest{
		URLs:     m.URLs,
		GameName: m.GameName,
		Text:     m.Text,
	}
}

// Publisher raw message sink, implemented by RabbitMQ
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

type Producer struct {
	pub    Publisher
	logger *logrus.Logger
}

func NewProducer(pub Publisher, logger *logrus.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

// PublishCheck validates msg, stamps ID and time when missing, and publishes it.
func (p *Producer) PublishCheck(ctx context.Context, msg *CheckMessage) error {
	if err := msg.Request().Validate(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := p.pub.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("check_id", msg.ID).Error("Failed to publish check")
		return fmt.Errorf("failed to publish: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"check_id": msg.ID,
		"urls":     len(msg.URLs),
		"game":     msg.GameName,
	}).Info("Check published to queue")
	return nil
}

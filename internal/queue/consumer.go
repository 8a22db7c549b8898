package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// CheckHandler processes one decoded message; a nil error acks it
type CheckHandler func(ctx context.Context, msg *CheckMessage) error

// Broker delivery side of the queue, implemented by RabbitMQ
type Broker interface {
	Consume() (<-chan amqp.Delivery, error)
	StartConnectionWatcher()
	ReconnectChan() <-chan struct{}
	Reconnect(ctx context.Context) error
}

type Consumer struct {
	broker        Broker
	logger        *logrus.Logger
	handler       CheckHandler
	workers       int
	workerWg      sync.WaitGroup
	activeWorkers atomic.Int32

	mu         sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
}

func NewConsumer(broker Broker, handler CheckHandler, workers int, logger *logrus.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		broker:  broker,
		logger:  logger,
		handler: handler,
		workers: workers,
	}
}

// Start begins consuming and re-subscribes after every reconnect until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.startWorkers(ctx); err != nil {
		return err
	}
	c.broker.StartConnectionWatcher()
	go c.handleReconnect(ctx)
	return nil
}

func (c *Consumer) startWorkers(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.logger.Warn("Consumer already running, skipping start")
		return nil
	}

	msgs, err := c.broker.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.running = true

	for i := 0; i < c.workers; i++ {
		c.workerWg.Add(1)
		go c.worker(workerCtx, i, msgs)
	}

	c.logger.WithField("workers", c.workers).Info("Consumer started")
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.workerWg.Done()
	c.activeWorkers.Add(1)
	defer c.activeWorkers.Add(-1)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				c.logger.WithField("worker_id", id).Warn("Delivery channel closed")
				return
			}
			c.processMessage(ctx, id, d)
		}
	}
}

// processMessage acks on success; undecodable or failed messages are dropped
// without requeue so a poison message cannot loop.
func (c *Consumer) processMessage(ctx context.Context, workerID int, d amqp.Delivery) {
	start := time.Now()

	var msg CheckMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal check message")
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.WithError(nackErr).Error("Failed to nack message")
		}
		return
	}

	log := c.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"check_id":  msg.ID,
	})
	log.Info("Processing queued check")

	if err := c.handler(ctx, &msg); err != nil {
		log.WithError(err).Error("Queued check failed")
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.WithError(nackErr).Error("Failed to nack message")
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.WithError(err).Error("Failed to acknowledge message")
	}
	log.WithField("duration", time.Since(start).Seconds()).Info("Queued check completed")
}

func (c *Consumer) handleReconnect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-c.broker.ReconnectChan():
			if !ok {
				return
			}
			c.logger.Warn("Connection lost, reconnecting")
			c.stopWorkers()

			if err := c.broker.Reconnect(ctx); err != nil {
				c.logger.WithError(err).Error("Failed to reconnect, waiting for next signal")
				continue
			}
			if err := c.startWorkers(ctx); err != nil {
				c.logger.WithError(err).Error("Failed to restart consumer")
			}
		}
	}
}

// stopWorkers cancels the workers and waits up to 30s for in-flight messages.
func (c *Consumer) stopWorkers() {
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
	c.running = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		c.logger.Warn("Timeout waiting for consumer workers to stop")
	}
}

func (c *Consumer) Stop() {
	c.logger.Info("Stopping consumer")
	c.stopWorkers()
	c.logger.Info("Consumer stopped")
}

func (c *Consumer) ActiveWorkers() int {
	return int(c.activeWorkers.Load())
}

func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

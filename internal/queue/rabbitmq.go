package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/retry"
)

const defaultHeartbeat = 10 * time.Second

var errNoChannel = errors.New("rabbitmq channel is not open")

// RabbitMQ durable job queue connection with reconnect signalling
type RabbitMQ struct {
	cfg       config.RabbitMQConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *logrus.Logger
	reconnect chan struct{}
	policy    *retry.Policy

	mu            sync.RWMutex
	closed        bool
	connNotify    chan *amqp.Error
	channelNotify chan *amqp.Error
}

// NewRabbitMQ dials the broker and declares the job queue. policy paces Reconnect.
func NewRabbitMQ(cfg config.RabbitMQConfig, policy *retry.Policy, logger *logrus.Logger) (*RabbitMQ, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	mq := &RabbitMQ{
		cfg:       cfg,
		logger:    logger,
		reconnect: make(chan struct{}, 1),
		policy:    policy,
	}

	if err := mq.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return mq, nil
}

func (mq *RabbitMQ) connect() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	conn, err := amqp.DialConfig(mq.cfg.URL(), amqp.Config{
		Heartbeat: defaultHeartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// one unacked message per pool worker
	if err := ch.Qos(mq.cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if _, err := ch.QueueDeclare(mq.cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	mq.conn = conn
	mq.channel = ch
	mq.connNotify = conn.NotifyClose(make(chan *amqp.Error, 1))
	mq.channelNotify = ch.NotifyClose(make(chan *amqp.Error, 1))

	mq.logger.WithFields(logrus.Fields{
		"host":     mq.cfg.Host,
		"port":     mq.cfg.Port,
		"queue":    mq.cfg.Queue,
		"prefetch": mq.cfg.Prefetch,
	}).Info("Connected to RabbitMQ")
	return nil
}

// StartConnectionWatcher signals on ReconnectChan whenever the connection
// or channel drops, until Close.
func (mq *RabbitMQ) StartConnectionWatcher() {
	go func() {
		for {
			mq.mu.RLock()
			if mq.closed {
				mq.mu.RUnlock()
				return
			}
			connNotify, channelNotify := mq.connNotify, mq.channelNotify
			mq.mu.RUnlock()

			var (
				amqpErr *amqp.Error
				what    string
			)
			select {
			case amqpErr = <-connNotify:
				what = "connection"
			case amqpErr = <-channelNotify:
				what = "channel"
			}

			if mq.isClosed() {
				return
			}
			if amqpErr != nil {
				mq.logger.WithError(amqpErr).Errorf("RabbitMQ %s closed unexpectedly", what)
			} else {
				mq.logger.Warnf("RabbitMQ %s closed", what)
			}
			mq.triggerReconnect()

			// wait for Reconnect to install fresh notify channels
			for !mq.isClosed() {
				mq.mu.RLock()
				swapped := mq.connNotify != connNotify
				mq.mu.RUnlock()
				if swapped {
					break
				}
				time.Sleep(200 * time.Millisecond)
			}
		}
	}()
}

func (mq *RabbitMQ) triggerReconnect() {
	select {
	case mq.reconnect <- struct{}{}:
	default:
		mq.logger.Debug("Reconnect signal already pending")
	}
}

// Reconnect redials with the retry policy's backoff.
func (mq *RabbitMQ) Reconnect(ctx context.Context) error {
	mq.closeConnections()

	_, err := retry.Call(ctx, mq.policy, "rabbitmq.reconnect", func(context.Context) (struct{}, error) {
		if mq.isClosed() {
			return struct{}{}, errors.New("rabbitmq client closed")
		}
		if err := mq.connect(); err != nil {
			return struct{}{}, retry.NewRetryableError(err)
		}
		return struct{}{}, nil
	}, nil)
	if err != nil {
		return err
	}

	mq.logger.Info("Reconnected to RabbitMQ")
	return nil
}

func (mq *RabbitMQ) closeConnections() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.channel != nil {
		mq.channel.Close()
		mq.channel = nil
	}
	if mq.conn != nil {
		mq.conn.Close()
		mq.conn = nil
	}
}

func (mq *RabbitMQ) currentChannel() (*amqp.Channel, error) {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	if mq.channel == nil {
		return nil, errNoChannel
	}
	return mq.channel, nil
}

// Publish sends a persistent JSON message to the job queue.
func (mq *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	ch, err := mq.currentChannel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", mq.cfg.Queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Consume manual-ack delivery stream of the job queue.
func (mq *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	ch, err := mq.currentChannel()
	if err != nil {
		return nil, err
	}
	msgs, err := ch.Consume(mq.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	return msgs, nil
}

// QueueStats pending messages and attached consumers.
func (mq *RabbitMQ) QueueStats() (messages, consumers int, err error) {
	ch, err := mq.currentChannel()
	if err != nil {
		return 0, 0, err
	}
	q, err := ch.QueueInspect(mq.cfg.Queue)
	if err != nil {
		return 0, 0, err
	}
	return q.Messages, q.Consumers, nil
}

// PurgeQueue drops every pending message.
func (mq *RabbitMQ) PurgeQueue() (int, error) {
	ch, err := mq.currentChannel()
	if err != nil {
		return 0, err
	}
	count, err := ch.QueuePurge(mq.cfg.Queue, false)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue: %w", err)
	}
	mq.logger.WithFields(logrus.Fields{
		"queue":  mq.cfg.Queue,
		"purged": count,
	}).Info("Queue purged")
	return count, nil
}

func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	mq.closed = true
	mq.mu.Unlock()

	mq.closeConnections()
	mq.logger.Info("RabbitMQ connection closed")
	return nil
}

// ReconnectChan receives one signal per detected disconnect.
func (mq *RabbitMQ) ReconnectChan() <-chan struct{} {
	return mq.reconnect
}

func (mq *RabbitMQ) IsConnected() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.conn != nil && !mq.conn.IsClosed()
}

func (mq *RabbitMQ) isClosed() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.closed
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/service"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakePublisher struct {
	bodies [][]byte
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.bodies = append(f.bodies, body)
	return nil
}

// fakeAcker records the outcome of each delivery tag
type fakeAcker struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeBroker struct {
	deliveries chan amqp.Delivery
	reconnect  chan struct{}
}

func (b *fakeBroker) Consume() (<-chan amqp.Delivery, error) { return b.deliveries, nil }
func (b *fakeBroker) StartConnectionWatcher()                {}
func (b *fakeBroker) ReconnectChan() <-chan struct{}         { return b.reconnect }
func (b *fakeBroker) Reconnect(context.Context) error        { return nil }

func TestProducer_PublishCheck(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, quietLogger())

	msg := &CheckMessage{URLs: []string{"https://shop.ru"}, GameName: "Hades"}
	require.NoError(t, p.PublishCheck(context.Background(), msg))

	require.Len(t, pub.bodies, 1)
	var decoded CheckMessage
	require.NoError(t, json.Unmarshal(pub.bodies[0], &decoded))
	assert.NotEmpty(t, decoded.ID)
	assert.Equal(t, msg.ID, decoded.ID)
	assert.False(t, decoded.EnqueuedAt.IsZero())
	assert.Equal(t, []string{"https://shop.ru"}, decoded.URLs)
	assert.Equal(t, &service.CheckRequest{URLs: []string{"https://shop.ru"}, GameName: "Hades"}, decoded.Request())
}

func TestProducer_RejectsInvalid(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, quietLogger())

	err := p.PublishCheck(context.Background(), &CheckMessage{URLs: []string{"javascript:alert(1)"}})
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
	assert.Empty(t, pub.bodies)

	pub.err = errors.New("channel closed")
	assert.Error(t, p.PublishCheck(context.Background(), &CheckMessage{Text: "post"}))
}

func TestConsumer_AckAndNack(t *testing.T) {
	acker := &fakeAcker{}
	broker := &fakeBroker{
		deliveries: make(chan amqp.Delivery, 3),
		reconnect:  make(chan struct{}),
	}

	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, msg *CheckMessage) error {
		mu.Lock()
		seen = append(seen, msg.ID)
		mu.Unlock()
		if msg.ID == "fail" {
			return errors.New("probe crashed")
		}
		return nil
	}

	ok, _ := json.Marshal(&CheckMessage{ID: "ok", URLs: []string{"example.ru"}})
	fail, _ := json.Marshal(&CheckMessage{ID: "fail", Text: "x"})
	broker.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: ok}
	broker.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: fail}
	broker.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte("{not json")}
	close(broker.deliveries)

	c := NewConsumer(broker, handler, 1, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool {
		acker.mu.Lock()
		defer acker.mu.Unlock()
		return len(acker.acked)+len(acker.nacked) == 3
	}, time.Second, 5*time.Millisecond)
	c.Stop()

	assert.Equal(t, 0, c.ActiveWorkers())
	assert.Equal(t, []string{"ok", "fail"}, seen)
	assert.Equal(t, []uint64{1}, acker.acked)
	assert.Equal(t, []uint64{2, 3}, acker.nacked)
	assert.Equal(t, []bool{false, false}, acker.requeue)
	assert.False(t, c.IsRunning())
}

func TestRabbitMQConfig_URL(t *testing.T) {
	cfg := config.RabbitMQConfig{Host: "mq", Port: 5672, User: "u", Password: "p", VHost: "/"}
	assert.Equal(t, "amqp://u:p@mq:5672/", cfg.URL())

	cfg.VHost = "/checks"
	assert.Equal(t, "amqp://u:p@mq:5672/checks", cfg.URL())
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rf-checker/rf-checker-go/internal/config"
)

// recordingSleeper collects requested sleeps without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type observerStub struct {
	attempts  []int
	successes int
}

func (o *observerStub) RecordRetryAttempt(_ string, attempt int) {
	o.attempts = append(o.attempts, attempt)
}

func (o *observerStub) RecordRetrySuccess(string) {
	o.successes++
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testPolicy(maxAttempts int, sleeper *recordingSleeper) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		Base:        2,
		Unit:        time.Second,
		JitterMax:   time.Second,
		EmptyDelay:  500 * time.Millisecond,
		Logger:      quietLogger(),
		Sleep:       sleeper.Sleep,
		Jitter: func(max time.Duration) time.Duration {
			return max / 2
		},
	}
}

func emptyString(s string) bool { return s == "" }

// TestCall_Success first attempt succeeds
func TestCall_Success(t *testing.T) {
	sleeper := &recordingSleeper{}
	attempts := 0

	got, err := Call(context.Background(), testPolicy(3, sleeper), "test", func(ctx context.Context) (string, error) {
		attempts++
		return "ok", nil
	}, emptyString)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeper.Delays())
}

// TestCall_TransientThenSuccess k transient failures cause k non-decreasing sleeps
func TestCall_TransientThenSuccess(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			sleeper := &recordingSleeper{}
			observer := &observerStub{}
			policy := testPolicy(k+1, sleeper)
			policy.Observer = observer
			attempts := 0

			got, err := Call(context.Background(), policy, "generate", func(ctx context.Context) (string, error) {
				attempts++
				if attempts <= k {
					return "", NewRetryableError(errors.New("service unavailable"))
				}
				return "text", nil
			}, emptyString)

			require.NoError(t, err)
			assert.Equal(t, "text", got)
			assert.Equal(t, k+1, attempts)

			delays := sleeper.Delays()
			require.Len(t, delays, k)
			for i := 1; i < len(delays); i++ {
				assert.GreaterOrEqual(t, delays[i], delays[i-1], "delays must not decrease")
			}
			assert.Len(t, observer.attempts, k)
			assert.Equal(t, 1, observer.successes)
		})
	}
}

// TestCall_BackoffFormula Base^attempt * Unit plus jitter
func TestCall_BackoffFormula(t *testing.T) {
	policy := testPolicy(5, &recordingSleeper{})

	assert.Equal(t, 2*time.Second+500*time.Millisecond, policy.Backoff(1))
	assert.Equal(t, 4*time.Second+500*time.Millisecond, policy.Backoff(2))
	assert.Equal(t, 8*time.Second+500*time.Millisecond, policy.Backoff(3))

	policy.MaxDelay = 5 * time.Second
	assert.Equal(t, 5*time.Second+500*time.Millisecond, policy.Backoff(4))
}

// TestCall_CappedDelaysNeverShrink random jitter at the cap cannot lower the next wait
func TestCall_CappedDelaysNeverShrink(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := testPolicy(5, sleeper)
	policy.MaxDelay = 2 * time.Second
	jitters := []time.Duration{900 * time.Millisecond, 100 * time.Millisecond, 0, 500 * time.Millisecond}
	policy.Jitter = func(time.Duration) time.Duration {
		j := jitters[0]
		jitters = jitters[1:]
		return j
	}

	_, err := Call(context.Background(), policy, "generate", func(ctx context.Context) (string, error) {
		return "", NewRetryableError(errors.New("unavailable"))
	}, emptyString)
	require.ErrorIs(t, err, ErrExhausted)

	assert.Equal(t, []time.Duration{
		2*time.Second + 900*time.Millisecond,
		2*time.Second + 900*time.Millisecond,
		2*time.Second + 900*time.Millisecond,
		2*time.Second + 900*time.Millisecond,
	}, sleeper.Delays())
}

// TestCall_EmptyPayloadExhaustion every attempt succeeds with nothing in it
func TestCall_EmptyPayloadExhaustion(t *testing.T) {
	sleeper := &recordingSleeper{}
	attempts := 0

	_, err := Call(context.Background(), testPolicy(4, sleeper), "generate", func(ctx context.Context) (string, error) {
		attempts++
		return "", nil
	}, emptyString)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, 4, attempts)
	assert.Len(t, sleeper.Delays(), 3)
	for _, d := range sleeper.Delays() {
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
	}
}

// TestCall_FatalFastPath a fatal error is returned without any sleep
func TestCall_FatalFastPath(t *testing.T) {
	sleeper := &recordingSleeper{}
	attempts := 0
	original := errors.New("invalid api key")

	_, err := Call(context.Background(), testPolicy(5, sleeper), "generate", func(ctx context.Context) (string, error) {
		attempts++
		return "", original
	}, emptyString)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeper.Delays())
	assert.ErrorIs(t, err, original)

	var fatal *FatalError
	assert.True(t, errors.As(err, &fatal))
}

// TestCall_TransientExhaustion transient on every attempt
func TestCall_TransientExhaustion(t *testing.T) {
	sleeper := &recordingSleeper{}
	attempts := 0
	last := errors.New("503 overloaded")

	_, err := Call(context.Background(), testPolicy(3, sleeper), "generate", func(ctx context.Context) (string, error) {
		attempts++
		return "", last
	}, emptyString)

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, sleeper.Delays(), 2)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, last)
	assert.Contains(t, err.Error(), "max attempts")

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
}

// TestCall_ContextCanceled cancellation during the backoff wait stops the loop
func TestCall_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	policy := testPolicy(5, &recordingSleeper{})
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return SleepContext(ctx, d)
	}

	_, err := Call(ctx, policy, "test", func(ctx context.Context) (string, error) {
		attempts++
		return "", NewRetryableError(errors.New("try again"))
	}, emptyString)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

// TestCall_NilEmptinessCheck without an isEmpty func every success counts
func TestCall_NilEmptinessCheck(t *testing.T) {
	sleeper := &recordingSleeper{}

	got, err := Call(context.Background(), testPolicy(3, sleeper), "test", func(ctx context.Context) (int, error) {
		return 0, nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.Empty(t, sleeper.Delays())
}

// TestDo_CustomClassifier the policy's classifier overrides IsTransient
func TestDo_CustomClassifier(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := testPolicy(3, sleeper)
	policy.Retryable = func(error) bool { return true }
	attempts := 0

	err := Do(context.Background(), policy, "test", func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("anything")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, sleeper.Delays(), 1)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}

// TestIsTransient default classification is fatal
func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"bad request", errors.New("400 bad request"), false},
		{"status 503", errors.New("http 503"), true},
		{"unavailable", errors.New("UNAVAILABLE: model busy"), true},
		{"overloaded", errors.New("model is overloaded"), true},
		{"explicit retryable", NewRetryableError(errors.New("x")), true},
		{"explicit non-retryable", NewNonRetryableError(errors.New("503")), false},
		{"wrapped retryable", fmt.Errorf("call: %w", NewRetryableError(errors.New("x"))), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestPolicy_WithAttempts(t *testing.T) {
	p := DefaultPolicy()
	cp := p.WithAttempts(2)

	assert.Equal(t, 2, cp.MaxAttempts)
	assert.Equal(t, 5, p.MaxAttempts)
}

func BenchmarkCall_Success(b *testing.B) {
	policy := DefaultPolicy()
	policy.Logger = quietLogger()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Call(ctx, policy, "bench", func(ctx context.Context) (string, error) {
			return "ok", nil
		}, emptyString)
	}
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(&config.RetryConfig{
		MaxAttempts: 3,
		Base:        3,
		Unit:        10 * time.Millisecond,
		MaxDelay:    time.Second,
	}, nil, nil)

	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 3.0, p.Base)
	assert.Equal(t, 10*time.Millisecond, p.Unit)
	assert.Equal(t, time.Second, p.JitterMax)
	assert.Equal(t, 500*time.Millisecond, p.EmptyDelay)
	assert.NotNil(t, p.Logger)

	d := FromConfig(&config.RetryConfig{}, nil, nil)
	assert.Equal(t, DefaultPolicy().MaxAttempts, d.MaxAttempts)
	assert.Equal(t, 2.0, d.Base)
}

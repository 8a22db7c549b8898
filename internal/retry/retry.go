package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyResponse the remote call kept succeeding without a usable payload
	ErrEmptyResponse = errors.New("empty response")
	// ErrExhausted transient failures outlasted the attempt budget
	ErrExhausted = errors.New("retries exhausted")
)

// Observer receives retry events, usually a metrics collector.
type Observer interface {
	RecordRetryAttempt(operation string, attempt int)
	RecordRetrySuccess(operation string)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy retry policy of one remote operation
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	Base        float64       // exponential base, delay = Base^attempt * Unit
	Unit        time.Duration // multiplier applied to Base^attempt
	JitterMax   time.Duration // uniform jitter added to every delay
	MaxDelay    time.Duration // cap on the exponential part, 0 = none
	EmptyDelay  time.Duration // fixed delay before retrying an empty payload

	// Retryable classifies errors; nil means IsTransient.
	Retryable func(error) bool

	Logger   *logrus.Logger
	Observer Observer

	// Sleep and Jitter are replaceable in tests.
	Sleep  SleepFunc
	Jitter func(max time.Duration) time.Duration
}

// DefaultPolicy base-2 exponential backoff with up to one second of jitter.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 5,
		Base:        2,
		Unit:        time.Second,
		JitterMax:   time.Second,
		MaxDelay:    60 * time.Second,
		EmptyDelay:  500 * time.Millisecond,
		Logger:      logrus.New(),
	}
}

// Backoff delay before the retry that follows the given (1-based) attempt.
func (p *Policy) Backoff(attempt int) time.Duration {
	exp := time.Duration(math.Pow(p.Base, float64(attempt)) * float64(p.Unit))
	if p.MaxDelay > 0 && exp > p.MaxDelay {
		exp = p.MaxDelay
	}
	return exp + p.jitter(p.JitterMax)
}

func (p *Policy) emptyBackoff() time.Duration {
	return p.EmptyDelay + p.jitter(p.JitterMax/4)
}

func (p *Policy) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	if p.Jitter != nil {
		return p.Jitter(max)
	}
	return time.Duration(rand.Int63n(int64(max)))
}

func (p *Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (p *Policy) logger() *logrus.Logger {
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	return p.Logger
}

// SleepContext waits for d unless ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryableError an error that states its own retryability
type RetryableError interface {
	error
	IsRetryable() bool
}

type retryableError struct {
	error
	retryable bool
}

func (e *retryableError) IsRetryable() bool {
	return e.retryable
}

func (e *retryableError) Unwrap() error {
	return e.error
}

// NewRetryableError marks err as an explicit transient service signal.
func NewRetryableError(err error) error {
	return &retryableError{error: err, retryable: true}
}

// NewNonRetryableError marks err as fatal regardless of its text.
func NewNonRetryableError(err error) error {
	return &retryableError{error: err, retryable: false}
}

var transientMarkers = []string{"503", "unavailable", "overloaded"}

// IsTransient reports whether err is an explicit transient signal.
// Unknown errors are fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var retryableErr RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.IsRetryable()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// FatalError a non-retryable failure, returned on first occurrence
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("non-retryable error: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// ExhaustedError transient failures on every attempt
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max attempts (%d) reached: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}

// Call runs action until it yields a non-empty value, a fatal error,
// or the policy's attempt budget runs out.
//
// Empty payloads wait EmptyDelay, transient errors wait Backoff(attempt),
// fatal errors return immediately without sleeping.
func Call[T any](ctx context.Context, p *Policy, op string, action func(ctx context.Context) (T, error), isEmpty func(T) bool) (T, error) {
	var zero T
	if p == nil {
		p = DefaultPolicy()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	log := p.logger()
	var lastWait time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry canceled: %w", err)
		}

		if attempt > 1 && p.Observer != nil {
			p.Observer.RecordRetryAttempt(op, attempt)
		}

		start := time.Now()
		value, err := action(ctx)
		duration := time.Since(start)

		if err == nil {
			if isEmpty == nil || !isEmpty(value) {
				if attempt > 1 {
					log.WithFields(logrus.Fields{
						"op":       op,
						"attempt":  attempt,
						"duration": duration,
					}).Info("Operation succeeded after retry")
					if p.Observer != nil {
						p.Observer.RecordRetrySuccess(op)
					}
				}
				return value, nil
			}

			if attempt == maxAttempts {
				log.WithFields(logrus.Fields{
					"op":       op,
					"attempts": maxAttempts,
				}).Warn("Operation returned empty payload on every attempt")
				return zero, fmt.Errorf("%s: %w after %d attempts", op, ErrEmptyResponse, maxAttempts)
			}

			wait := p.emptyBackoff()
			log.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt,
				"wait":    wait,
			}).Debug("Empty payload, retrying")
			if err := p.sleep(ctx, wait); err != nil {
				return zero, fmt.Errorf("retry canceled during wait: %w", err)
			}
			continue
		}

		log.WithFields(logrus.Fields{
			"op":       op,
			"attempt":  attempt,
			"max":      maxAttempts,
			"duration": duration,
			"error":    err.Error(),
		}).Warn("Operation failed")

		if !p.retryable(err) {
			return zero, &FatalError{Err: err}
		}

		if attempt == maxAttempts {
			return zero, &ExhaustedError{Attempts: maxAttempts, Last: err}
		}

		// delays never shrink, even once MaxDelay caps the exponent
		wait := p.Backoff(attempt)
		if wait < lastWait {
			wait = lastWait
		}
		lastWait = wait
		log.WithFields(logrus.Fields{
			"op":           op,
			"next_attempt": attempt + 1,
			"wait":         wait,
		}).Info("Waiting before retry")
		if err := p.sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("retry canceled during wait: %w", err)
		}
	}

	// unreachable: the loop always returns on its last attempt
	return zero, &ExhaustedError{Attempts: maxAttempts, Last: ErrExhausted}
}

// Do runs an action without a payload under the same protocol.
func Do(ctx context.Context, p *Policy, op string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, nil)
	return err
}

// WithAttempts returns a copy of p with a different attempt budget.
func (p *Policy) WithAttempts(n int) *Policy {
	cp := *p
	cp.MaxAttempts = n
	return &cp
}

// Package backoff is the retry policy shared by the sync service and the
// streaming client: attempt ceiling, exponential delay with a cap, random
// jitter and a retryable-error predicate. The retry loop itself is
// cenkalti/backoff; this package adapts it to the engine's error taxonomy.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Default policy values
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultMultiplier  = 2.0
	DefaultJitter      = 0.2
)

// Policy struct
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the +/- fraction applied to each delay (0.2 = +/-20%)
	Jitter float64
	// Retryable decides whether an error is worth another attempt
	Retryable func(error) bool
	// Name shows up in retry logs
	Name string

	sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// New returns a policy with the default values and the given predicate
func New(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		Jitter:      DefaultJitter,
		Retryable:   retryable,
	}
}

// WithSleep swaps the sleep function, used by tests to skip real delays
func (p Policy) WithSleep(sleep func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = sleep
	return p
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// exponential builds the delay schedule: base * multiplier^n, capped at
// MaxDelay, randomized by +/- Jitter. It never stops on elapsed time.
func (p Policy) exponential() *cbackoff.ExponentialBackOff {
	b := cbackoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultBaseDelay
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = DefaultMultiplier
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultMaxDelay
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.RandomizationFactor = p.Jitter
	if b.RandomizationFactor < 0 {
		b.RandomizationFactor = 0
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delay returns the wait before retry number attempt (0-based)
func (p Policy) Delay(attempt int) time.Duration {
	b := p.exponential()
	for i := 0; i < attempt; i++ {
		b.NextBackOff()
	}
	return b.NextBackOff()
}

// Do runs op until it succeeds, returns a non-retryable error, the context is
// done, or MaxAttempts is reached. op receives the 1-based attempt number.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	max := p.attempts()
	attempt := 0
	var lastErr error

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return cbackoff.Permanent(err)
		}
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if p.Retryable == nil || !p.Retryable(err) {
			return cbackoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		logrus.WithFields(logrus.Fields{
			"component": "backoff",
			"op":        p.Name,
			"attempt":   attempt,
			"max":       max,
			"delay":     delay,
		}).Warnf("attempt failed, retrying: %v", err)
	}

	schedule := cbackoff.WithContext(cbackoff.WithMaxRetries(p.exponential(), uint64(max-1)), ctx)
	var timer cbackoff.Timer
	if p.sleep != nil {
		timer = &sleepTimer{ctx: ctx, sleep: p.sleep}
	}

	err := cbackoff.RetryNotifyWithTimer(operation, schedule, notify, timer)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		if lastErr != nil && !errors.Is(lastErr, err) {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
		return err
	case attempt >= max && p.Retryable != nil && p.Retryable(err):
		return &ExhaustedError{Attempts: attempt, Err: err}
	}
	return err
}

// Retry is Do for operations that produce a value
func Retry[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		v, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// sleepTimer drives the retry loop with an injected sleep. The wait ends when
// sleep returns, whatever it returns; cancellation is seen by the loop.
type sleepTimer struct {
	ctx   context.Context
	sleep func(ctx context.Context, d time.Duration) error
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	_ = t.sleep(t.ctx, d)
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time {
	return t.c
}

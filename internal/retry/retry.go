// Package retry runs operations with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config controls attempt count and delay growth.
type Config struct {
	// MaxAttempts includes the first try.
	MaxAttempts int
	// InitialDelay is the sleep after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps the sleep between attempts.
	MaxDelay time.Duration
	// Factor multiplies the delay after every failure.
	Factor float64
	// Jitter randomizes each sleep in [0.5, 1.5] of its nominal value.
	Jitter bool
}

// Exponential returns a config with doubling delays and jitter enabled.
func Exponential(maxAttempts int, initial, max time.Duration) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		MaxDelay:     max,
		Factor:       2.0,
		Jitter:       true,
	}
}

// Result reports the outcome of a retried operation.
type Result struct {
	Attempts int
	Err      error
	Duration time.Duration
}

// Do runs op until it succeeds, returns a permanent error, exhausts the
// attempt budget, or the context ends.
func (c Config) Do(ctx context.Context, op func() error) Result {
	start := time.Now()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Factor <= 0 {
		c.Factor = 2.0
	}

	var result Result
	delay := c.InitialDelay
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		result.Attempts = attempt
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}

		err := op()
		if err == nil {
			result.Err = nil
			break
		}
		result.Err = err
		if IsPermanent(err) || attempt >= c.MaxAttempts {
			break
		}

		sleep := delay
		if c.Jitter {
			sleep = time.Duration(float64(delay) * (0.5 + rand.Float64())) // #nosec G404 -- jitter needs no crypto randomness
		}
		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		case <-time.After(sleep):
		}
		delay = time.Duration(float64(delay) * c.Factor)
		if delay > c.MaxDelay {
			delay = c.MaxDelay
		}
	}
	result.Duration = time.Since(start)
	return result
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, c Config, op func() (T, error)) (T, Result) {
	var value T
	result := c.Do(ctx, func() error {
		var err error
		value, err = op()
		return err
	})
	return value, result
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops retrying immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is or wraps a PermanentError.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

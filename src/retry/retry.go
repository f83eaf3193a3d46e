// Package retry holds the single retry/backoff combinator used by the write
// serializer and the execution client.
package retry

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
)

const (
	DefaultAttempts   = 5
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxBackoff = 8 * time.Second
)

// Policy configures Do. Zero values fall back to the defaults above.
type Policy struct {
	Attempts   int
	BaseDelay  time.Duration
	MaxBackoff time.Duration

	// Retryable decides whether err deserves another attempt. When nil every
	// error except a Permanent one is retried.
	Retryable func(err error) bool

	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so that Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts are
// exhausted or ctx is done. The returned error is the last one fn produced,
// unwrapped from Permanent.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	base := policy.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxBackoff := policy.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := Backoff(base, maxBackoff, attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		} else {
			logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
			}).WithError(err).Debug("retrying after transient error")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}

	return err
}

// Backoff returns base * 2^(attempt-1) capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

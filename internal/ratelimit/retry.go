package ratelimit

import (
	"context"
	"errors"
	"log"
	"time"
)

// RetryPolicy retries a call on quota exhaustion with exponential backoff.
// Any error not wrapping ErrQuotaExhausted propagates without retry.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	sleep func(context.Context, time.Duration) error
}

// DefaultRetry matches the quota behaviour of the analysis services:
// 4s -> 8s -> 16s -> 32s backoff, capped at 60s, five attempts total.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   4 * time.Second,
		MaxDelay:    60 * time.Second,
		MaxAttempts: 5,
		sleep:       sleepContext,
	}
}

// Do runs fn until it succeeds, fails with a non-quota error, or the attempt
// budget is exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrQuotaExhausted) {
			return err
		}
		if attempt == attempts {
			break
		}

		log.Printf("ratelimit: quota exhausted, retrying in %s (attempt %d/%d)", delay, attempt, attempts)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return err
}

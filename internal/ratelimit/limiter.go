// Package ratelimit throttles and retries calls to the external analysis
// services. One Limiter is shared by every detection and narration call in
// the process, across sessions, because the quota being protected belongs to
// the external service rather than to any one session.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQuotaExhausted marks the one error class worth retrying. Collaborator
// clients wrap quota and rate-limit failures with it; everything else
// propagates immediately.
var ErrQuotaExhausted = errors.New("quota exhausted")

// Limiter enforces a minimum spacing of 60/rpm plus a safety buffer between
// consecutive calls. The mutex is held for the duration of the sleep, so
// concurrent callers queue rather than racing the shared timestamp.
type Limiter struct {
	mu       sync.Mutex
	minDelay time.Duration
	buffer   time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLimiter creates a limiter allowing requestsPerMinute calls with an extra
// per-call safety buffer.
func NewLimiter(requestsPerMinute int, buffer time.Duration) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 10
	}
	return &Limiter{
		minDelay: time.Duration(float64(time.Minute) / float64(requestsPerMinute)),
		buffer:   buffer,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Wait blocks until enough time has passed since the previous call, then
// records the call. The first call never waits. It returns the time actually
// slept, and an error only when ctx is cancelled mid-wait.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.last.IsZero() {
		l.last = now
		return 0, nil
	}

	required := l.minDelay + l.buffer
	elapsed := now.Sub(l.last)
	if elapsed >= required {
		l.last = now
		return 0, nil
	}

	wait := required - elapsed
	if err := l.sleep(ctx, wait); err != nil {
		return 0, err
	}
	l.last = l.now()
	return wait, nil
}

// Reset clears the limiter's timestamp so the next call proceeds immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = time.Time{}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// HTTPError carries a response status so the retry classifier can tell
// throttling and server faults apart from client mistakes.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.URL)
}

// Transient marks an error as retryable regardless of its underlying type.
type Transient struct {
	Err error
}

func (e *Transient) Error() string { return e.Err.Error() }
func (e *Transient) Unwrap() error { return e.Err }

// IsTransient reports whether err belongs to the whitelisted set of failure
// classes worth retrying: connection errors, timeouts, 429 and 5xx statuses.
// Everything else propagates immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var tr *Transient
	if errors.As(err, &tr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 429 || httpErr.Status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Policy retries an operation with exponential backoff and jitter. The zero
// value is unusable; construct with sensible bounds at the call site so retry
// semantics stay visible where the outbound call happens.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Do runs op, retrying transient failures until MaxAttempts is exhausted.
// Non-transient errors and context cancellation return immediately.
func (p Policy) Do(ctx context.Context, op func() error) error {
	if p.MaxAttempts <= 0 {
		return errors.New("retry policy: max attempts must be positive")
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = op()
		if lastErr == nil {
			if attempt > 1 {
				slog.DebugContext(ctx, "operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if !IsTransient(lastErr) {
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.backoff(attempt)
		slog.DebugContext(ctx, "transient failure, backing off", "attempt", attempt, "delay", delay, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// backoff returns BaseDelay * 2^(attempt-1) capped at MaxDelay, with up to
// 50% jitter so concurrent workers don't retry in lockstep.
func (p Policy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

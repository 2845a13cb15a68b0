package llm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"
)

const maxBackoff = 6 * time.Second

func (c *Client) withRetry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxAttempts {
			break
		}

		sleep := backoffWithJitter(c.baseDelay, attempt)
		c.logger.Warn("llm call failed, retrying", "attempt", attempt, "backoff", sleep, "error", err)
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-t.C:
		}
	}
	return lastErr
}

// retryable reports rate limiting, server errors and transport failures.
// Client errors (bad request, auth) and cancellation are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := statusOf(err)
	if code == 0 {
		return true
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// backoffWithJitter is base * 2^(attempt-1), capped, with jitter in [0.7, 1.3].
func backoffWithJitter(base time.Duration, attempt int) time.Duration {
	mult := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(base) * mult)
	if d > maxBackoff {
		d = maxBackoff
	}
	j := 0.7 + rand.Float64()*0.6
	return time.Duration(float64(d) * j)
}

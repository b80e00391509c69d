package cloudpoll

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy determines whether a failed request should be retried.
type RetryPolicy func(error) bool

// maxRetryAfter caps how long a server-supplied Retry-After header can
// stretch a single wait.
const maxRetryAfter = 30 * time.Second

// DefaultRetryPolicy retries errors that are likely transient: API errors
// for rate limits, conflicts and locked resources, gateway-level 5xx
// responses, and network timeouts. An http.Client timeout matches both
// context.DeadlineExceeded and net.Error, so deadline errors count as
// transient; Do's context checks stop the retry loop once the caller's
// own context is done. Cancellation, like everything else (malformed 2xx
// bodies included), is permanent.
func DefaultRetryPolicy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrorCodeRateLimitExceeded, ErrorCodeConflict, ErrorCodeLocked:
			return true
		}
		switch apiErr.Status {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}

	return false
}

// defaultRetryBackoff is the request-level retry schedule: 500ms doubling
// to a 5s cap, jittered so concurrent clients don't retry in lockstep.
func defaultRetryBackoff() BackoffFunc {
	return ExponentialBackoff(ExponentialBackoffOpts{
		Base:       500 * time.Millisecond,
		Multiplier: 2,
		Cap:        5 * time.Second,
		Jitter:     0.25,
	})
}

// retryDelay picks the wait before the next request attempt, honoring a
// server-supplied Retry-After when it asks for more than the backoff.
func retryDelay(backoff BackoffFunc, attempt int, err error) time.Duration {
	delay := backoff(attempt)

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
		delay = apiErr.RetryAfter
		if delay > maxRetryAfter {
			delay = maxRetryAfter
		}
	}
	return delay
}

// parseRetryAfter reads a Retry-After header given in seconds. The
// HTTP-date form is not used by the APIs this client targets.
func parseRetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// sleep waits for delay or until ctx is done. It reports whether the full
// delay elapsed.
func sleep(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

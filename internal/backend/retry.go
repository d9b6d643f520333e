package backend

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// StatusError is a non-2xx answer from the provider. Message carries the
// response body.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, truncate(e.Message, 200))
}

// RetryableError marks a transient upstream failure (429 or 5xx).
type RetryableError struct {
	StatusError
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

func statusError(code int, body string) error {
	se := StatusError{StatusCode: code, Message: body}
	if code == http.StatusTooManyRequests || code >= 500 {
		return &RetryableError{se}
	}
	return &se
}

// Backoff returns a duration for attempt n (0-indexed) with jitter. The base
// delay doubles per attempt and is capped at 30s.
func Backoff(attempt int) time.Duration {
	shift := min(max(attempt, 0), 5)
	base := min(time.Duration(1<<shift)*time.Second, 30*time.Second)
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (e *RetryableError) Unwrap() error { return &e.StatusError }

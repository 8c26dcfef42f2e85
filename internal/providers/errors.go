package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jackzampolin/pagemerge/internal/backoff"
)

// ErrMalformedResponse is returned when a backend replies with something
// that cannot be decoded into the expected shape.
var ErrMalformedResponse = errors.New("malformed backend response")

// TransportError is a non-success HTTP reply from a backend.
type TransportError struct {
	Backend    string
	StatusCode int
	Message    string
	retryAfter time.Duration
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Backend, e.StatusCode, e.Message)
}

// RetryAfter returns the server-requested wait, if any.
func (e *TransportError) RetryAfter() time.Duration {
	return e.retryAfter
}

// Retryable reports whether the status is worth another attempt.
func (e *TransportError) Retryable() bool {
	return shouldRetry(e.StatusCode)
}

// shouldRetry returns true for status codes that should be retried.
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly:
		return true
	case http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		// OpenRouter returns these transiently from upstream caches.
		return true
	case http.StatusTooManyRequests:
		return true
	case 520, 521, 522, 523, 524: // Cloudflare errors
		return true
	default:
		return statusCode >= 500
	}
}

// newTransportError builds a TransportError from a response, marking it
// permanent when retrying cannot help.
func newTransportError(backend string, resp *http.Response, message string) error {
	te := &TransportError{
		Backend:    backend,
		StatusCode: resp.StatusCode,
		Message:    message,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
	if !te.Retryable() {
		return backoff.Permanent(te)
	}
	return te
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

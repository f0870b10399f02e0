// Package netutil implements the client-side retry/backoff policy shared
// by ndnclient (spec.md §4.4.4): transport errors and 5xx/429 responses are
// retryable with backoff; everything else is fatal.
package netutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultTimeout is the per-request timeout spec.md §5 calls for absent an
// explicit caller-supplied context deadline.
const DefaultTimeout = 60 * time.Second

// HTTPStatusError wraps a non-2xx HTTP response so callers can classify it.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return http.StatusText(e.StatusCode) + ": " + e.Body
}

// Retryable reports whether err is worth retrying per spec.md §4.4.4:
// transport timeouts/connection errors and 5xx/429 are retryable; 4xx and
// verification failures are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || true
	}
	return false
}

// Do runs op with exponential backoff, stopping as soon as op succeeds, ctx
// is done, or op returns a non-retryable error.
func Do(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

package httpclient

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const (
	defaultAttemptTimeout = 8 * time.Second
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxDelay       = 10 * time.Second
)

// RetryPredicate reports whether a failed attempt should be retried. Exactly
// one of resp and err is non-nil.
type RetryPredicate func(resp *http.Response, err error) bool

// Options tune the retrying fetch.
type Options struct {
	// Retries is the number of additional attempts after the first one.
	Retries int
	// Timeout bounds each individual attempt (default 8s).
	Timeout time.Duration
	// BaseDelay seeds the exponential backoff (default 500ms).
	BaseDelay time.Duration
	// MaxDelay caps the backoff (default 10s).
	MaxDelay time.Duration
	// Jitter scales each delay by a random factor in [0.5, 1.0).
	Jitter bool
	// RetryPredicate overrides DefaultRetryPredicate when set.
	RetryPredicate RetryPredicate
}

// DefaultRetryPredicate retries network errors, HTTP 5xx, and HTTP 429.
// All other 4xx responses are terminal.
func DefaultRetryPredicate(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

// Do executes the request built by newRequest, retrying per opts. Each attempt
// runs under its own timeout. A response the predicate declines to retry is
// returned to the caller as-is, successful or not; once retries are exhausted
// the last failure is surfaced as an error.
//
// newRequest is called once per attempt so the request body is never reused.
func Do(ctx context.Context, client *http.Client, newRequest func(ctx context.Context) (*http.Request, error), opts Options) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	predicate := opts.RetryPredicate
	if predicate == nil {
		predicate = DefaultRetryPredicate
	}

	attempts := opts.Retries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoffDelay(opts, attempt-1)); err != nil {
				return nil, err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)

		req, err := newRequest(attemptCtx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			cancel()
			if !predicate(nil, err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if !predicate(resp, nil) {
			// The attempt context must stay alive while the caller reads the
			// body; tie its cancellation to Close.
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		lastErr = fmt.Errorf("upstream returned status %d", resp.StatusCode)
		drain(resp)
		cancel()
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func backoffDelay(opts Options, attempt int) time.Duration {
	base := opts.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	max := opts.MaxDelay
	if max <= 0 {
		max = defaultMaxDelay
	}

	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	if opts.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

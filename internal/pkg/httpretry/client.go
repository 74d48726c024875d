// Package httpretry retries provider calls that were refused without being
// accepted. Only throttling responses are retried: a transport error after
// the request was written may mean the provider already queued the message.
package httpretry

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/postify/drip-engine/internal/pkg/logger"
)

// HTTPDoer executes HTTP requests. *http.Client and *RetryClient both
// satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer and retries 429 and 503 responses with
// jittered exponential backoff, honouring Retry-After when present.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      func(req *http.Request, d time.Duration) error
}

// Option configures a RetryClient.
type Option func(*RetryClient)

// WithBackoff overrides the base and maximum delay.
func WithBackoff(base, max time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = max
	}
}

// NewRetryClient wraps client. A nil client gets a 30s http.Client and a
// non-positive maxRetries becomes 2.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 2
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   5 * time.Second,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do executes req. The final response is returned as-is so the caller can
// read the provider's error body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := rc.client.Do(req)
		if err != nil {
			return nil, err
		}
		if !isThrottled(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}
		if req.Body != nil && req.GetBody == nil {
			return resp, nil
		}

		delay := retryAfter(resp.Header.Get("Retry-After"), rc.maxDelay)
		if delay == 0 {
			delay = rc.backoff(attempt + 1)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		logger.Warn("provider throttled, retrying",
			"host", req.URL.Host, "status", resp.StatusCode, "attempt", attempt+1, "delay", delay)
		if err := rc.sleep(req, delay); err != nil {
			return nil, err
		}
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("httpretry: reset request body: %w", err)
			}
			req.Body = body
		}
	}
}

// backoff returns a random delay in [base/2, min(max, base*2^(attempt-1))].
func (rc *RetryClient) backoff(attempt int) time.Duration {
	d := rc.baseDelay << (attempt - 1)
	if d > rc.maxDelay || d <= 0 {
		d = rc.maxDelay
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func retryAfter(v string, max time.Duration) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		return max
	}
	return d
}

func isThrottled(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func sleepCtx(req *http.Request, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}

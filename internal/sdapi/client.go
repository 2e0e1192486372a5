package sdapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"dataset-coach/internal/logging"
	"dataset-coach/internal/metrics"
)

// Endpoint paths on the generation service.
const (
	endpointExtraBatch  = "sdapi/v1/extra-batch-images"
	endpointImg2Img     = "sdapi/v1/img2img"
	endpointInterrogate = "sdapi/v1/interrogate"
)

// RetryPolicy controls how failed requests to the generation service are
// retried. Transport errors are always retryable; HTTP statuses are
// classified by RetryableStatus.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt. Each further
	// attempt doubles it, capped at MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter is the fraction of the backoff randomized on each wait
	// (0.1 means +/-10%). Zero disables jitter.
	Jitter float64
	// RetryableStatus reports whether an HTTP status code is worth
	// retrying. Nil falls back to DefaultRetryableStatus.
	RetryableStatus func(code int) bool
}

// DefaultRetryableStatus retries rate limiting and server-side failures.
// Other client errors indicate a bad request and retrying cannot help.
func DefaultRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// DefaultRetryPolicy returns the policy used when the caller does not
// configure one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
		Jitter:         0.1,
	}
}

func (p RetryPolicy) retryable(code int) bool {
	if p.RetryableStatus != nil {
		return p.RetryableStatus(code)
	}
	return DefaultRetryableStatus(code)
}

// backoff returns the wait before the given retry (0-based), exponential
// with jitter and capped at MaxBackoff.
func (p RetryPolicy) backoff(retry int) time.Duration {
	d := p.InitialBackoff << uint(retry)
	if d <= 0 || d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if p.Jitter > 0 {
		delta := (rand.Float64()*2 - 1) * p.Jitter * float64(d)
		d = time.Duration(float64(d) + delta)
	}
	return d
}

// StatusError is returned when the generation service answers with a
// non-success HTTP status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Client talks to an sd-webui compatible generation service.
type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryPolicy
}

// NewClient creates a Client for the service at baseURL. A zero timeout
// disables the request timeout; generation calls can legitimately run for
// minutes.
func NewClient(baseURL string, timeout time.Duration, retry RetryPolicy) *Client {
	if retry.MaxAttempts < 1 {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

// BaseURL returns the configured service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// postJSON posts payload to the endpoint and decodes the response into out,
// retrying per the client's policy. The final error is the last attempt's.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
	}
	url := c.baseURL + "/" + endpoint

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.retry.backoff(attempt - 1)
			logging.Warn("Retrying %s (attempt %d/%d) after %s: %v",
				endpoint, attempt+1, c.retry.MaxAttempts, wait, lastErr)
			metrics.RemoteRetriesTotal.WithLabelValues(endpoint).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build %s request: %w", endpoint, err)
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		metrics.RemoteRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.RemoteRequestsTotal.WithLabelValues(endpoint, "retryable").Inc()
			lastErr = fmt.Errorf("request to %s failed: %w", endpoint, err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				metrics.RemoteRequestsTotal.WithLabelValues(endpoint, "fatal").Inc()
				return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
			}
			metrics.RemoteRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
			return nil
		}

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		statusErr := &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: string(snippet)}

		if !c.retry.retryable(resp.StatusCode) {
			metrics.RemoteRequestsTotal.WithLabelValues(endpoint, "fatal").Inc()
			return statusErr
		}
		metrics.RemoteRequestsTotal.WithLabelValues(endpoint, "retryable").Inc()
		lastErr = statusErr
	}

	return fmt.Errorf("%s failed after %d attempts: %w", endpoint, c.retry.MaxAttempts, lastErr)
}

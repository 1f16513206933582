// Package http holds the outbound HTTP client and the startup health check
// the standalone worker runs against the API host.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Check performs one GET and succeeds on any 2xx status.
func (c *Client) Check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check %s returned %d", url, resp.StatusCode)
	}
	return nil
}

// WaitForHealthy polls url until it answers 2xx, giving up after attempts
// tries spaced delay apart. onRetry, when set, sees each failed attempt.
func (c *Client) WaitForHealthy(ctx context.Context, url string, attempts int, delay time.Duration, onRetry func(attempt int, err error)) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = c.Check(ctx, url); lastErr == nil {
			return nil
		}
		if onRetry != nil {
			onRetry(attempt, lastErr)
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s not healthy after %d attempts: %w", url, attempts, lastErr)
}

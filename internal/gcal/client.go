package gcal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Retry and backoff constants. Delay for attempt n (counted from 1) is
// baseBackoff * 2^(n-1) plus up to maxJitter of random jitter.
const (
	maxRetries    = 3
	baseBackoff   = 1 * time.Second
	maxJitter     = 1 * time.Second
	backoffFactor = 2.0
	userAgent     = "takvim/0.1"
)

// DefaultBaseURL is the Calendar API v3 endpoint.
const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer
// (gcal package) per Go convention "accept interfaces, return structs".
// The tokens package provides the real implementation.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is an HTTP client for the Google Calendar API.
// It handles request construction, authentication, retry with
// exponential backoff, and error classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Calendar API client.
// baseURL is typically DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// Do executes an HTTP request against the Calendar API.
// The path is appended to the client's base URL. body may be nil.
// Retryable failures (429, 5xx, rate-limited 403, network errors) are
// retried up to maxRetries times; the last error is returned unchanged
// after exhaustion. The caller is responsible for closing the response
// body on success.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("gcal: request canceled: %w", ctx.Err())
			}

			// A failed token fetch will not heal by resending the request.
			var tokErr *tokenError
			if errors.As(err, &tokErr) {
				return nil, fmt.Errorf("gcal: %s %s: %w", method, path, tokErr.Unwrap())
			}

			// Network errors are retryable.
			if attempt < maxRetries {
				attempt++
				backoff := calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("gcal: request canceled: %w", sleepErr)
				}

				continue
			}

			return nil, fmt.Errorf("gcal: %s %s failed after %d retries: %w", method, path, maxRetries, err)
		}

		// 2xx — success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		reason := parseReason(errBody)

		if isRetryable(resp.StatusCode, reason) && attempt < maxRetries {
			attempt++
			backoff := calcBackoff(attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.String("reason", reason),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("gcal: request canceled: %w", err)
			}

			continue
		}

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Reason:     reason,
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, apiErr
	}
}

// doOnce executes a single HTTP request (no retry). The body is wrapped in
// a fresh reader per attempt so retries resend the full payload.
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, &tokenError{err: err}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// calcBackoff computes exponential backoff for the given attempt (counted
// from 1) with 0..maxJitter of additive jitter.
func calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt-1))
	jitter := rand.Float64() * float64(maxJitter) //nolint:gosec // jitter does not need crypto rand

	return time.Duration(backoff + jitter)
}

// tokenError marks a failure to obtain a bearer token, which is never
// retried at the request level.
type tokenError struct {
	err error
}

func (e *tokenError) Error() string { return "obtaining token: " + e.err.Error() }
func (e *tokenError) Unwrap() error { return e.err }

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

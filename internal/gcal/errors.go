// Package gcal provides an HTTP client for the Google Calendar API
// with automatic retry, rate limiting, and error classification.
package gcal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gcal.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gcal: bad request")
	ErrUnauthorized = errors.New("gcal: unauthorized")
	ErrForbidden    = errors.New("gcal: forbidden")
	ErrNotFound     = errors.New("gcal: not found")
	ErrGone         = errors.New("gcal: resource gone")
	ErrRateLimited  = errors.New("gcal: rate limited")
	ErrServerError  = errors.New("gcal: server error")
)

// Rate-limit reasons reported in the Calendar API error body. A 403 is
// retryable only for these reasons; any other 403 is fatal.
const (
	reasonRateLimit     = "rateLimitExceeded"
	reasonUserRateLimit = "userRateLimitExceeded"
)

// APIError wraps a sentinel error with HTTP status code, the error reason
// from the API body, and the raw message for debugging.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gcal: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gcal: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorBody mirrors the Calendar API error envelope.
type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// parseReason extracts the first error reason from a Calendar API error
// body. Returns "" when the body is not the expected envelope.
func parseReason(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}

	if len(eb.Error.Errors) == 0 {
		return ""
	}

	return eb.Error.Errors[0].Reason
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether a response should be retried. Classification
// happens once here, at the call boundary: 429 and 5xx always retry; 403
// retries only for the documented rate-limit reasons.
func isRetryable(code int, reason string) bool {
	switch {
	case code == http.StatusTooManyRequests:
		return true
	case code >= http.StatusInternalServerError:
		return true
	case code == http.StatusForbidden:
		return reason == reasonRateLimit || reason == reasonUserRateLimit
	default:
		return false
	}
}

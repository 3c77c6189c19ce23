package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a non-success response from the workspace API. Carries
// the HTTP status so callers can distinguish rate limiting and missing
// records from other failures.
//
// The relay deliberately does not retry these: retry and backoff policy
// belongs to the caller, which knows whether an operation is idempotent.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("workspace API request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether the error is the workspace API's rate limiter
// rejecting the call.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports whether the error indicates a missing record.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsAPIError extracts an *APIError from an error chain, returning nil when the
// error is not an API response failure (e.g. a connection error).
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

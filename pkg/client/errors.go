package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// FetchError is returned when the endpoint answers with a non-success
// HTTP status. The response body is not inspected.
type FetchError struct {
	StatusCode int
	Endpoint   string
	ErrorClass ErrorClass
	Status     string
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s failed: %d", e.Endpoint, e.StatusCode)
}

// StatusCode returns the HTTP status carried by a FetchError in err's chain.
func StatusCode(err error) (int, bool) {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode, true
	}
	return 0, false
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

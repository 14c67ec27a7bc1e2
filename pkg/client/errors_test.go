package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{
			name:       "client error should not retry",
			errorClass: ErrorClassClient,
			expected:   false,
		},
		{
			name:       "server error should retry",
			errorClass: ErrorClassServer,
			expected:   true,
		},
		{
			name:       "rate limit should retry",
			errorClass: ErrorClassRateLimit,
			expected:   true,
		},
		{
			name:       "network error should retry",
			errorClass: ErrorClassNetwork,
			expected:   true,
		},
		{
			name:       "empty error class should not retry",
			errorClass: "",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shouldRetry(tt.errorClass)
			if result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *FetchError
		expected string
	}{
		{
			name:     "server error",
			err:      &FetchError{StatusCode: 500, Endpoint: "/pairs", ErrorClass: ErrorClassServer},
			expected: "/pairs failed: 500",
		},
		{
			name:     "client error",
			err:      &FetchError{StatusCode: 404, Endpoint: "/interactions", ErrorClass: ErrorClassClient},
			expected: "/interactions failed: 404",
		},
		{
			name:     "rate limit",
			err:      &FetchError{StatusCode: 429, Endpoint: "/pairs", ErrorClass: ErrorClassRateLimit},
			expected: "/pairs failed: 429",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	fetchErr := &FetchError{StatusCode: 503, Endpoint: "/pairs", ErrorClass: ErrorClassServer}

	code, ok := StatusCode(fmt.Errorf("%w after 3 attempts: %w", ErrRetryExhausted, fetchErr))
	if !ok || code != 503 {
		t.Errorf("StatusCode(wrapped) = %d, %v, want 503, true", code, ok)
	}

	if _, ok := StatusCode(errors.New("connection refused")); ok {
		t.Error("StatusCode should report false for non-HTTP errors")
	}
	if _, ok := StatusCode(nil); ok {
		t.Error("StatusCode(nil) should report false")
	}
}

func TestIsBreakerSuccess(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: true},
		{name: "client error", err: &FetchError{StatusCode: 400, ErrorClass: ErrorClassClient}, want: true},
		{name: "server error", err: &FetchError{StatusCode: 500, ErrorClass: ErrorClassServer}, want: false},
		{name: "rate limit", err: &FetchError{StatusCode: 429, ErrorClass: ErrorClassRateLimit}, want: false},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: false},
		{name: "cancelled", err: fmt.Errorf("%w: %w", ErrContextCancelled, errContextCanceled()), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBreakerSuccess(tt.err); got != tt.want {
				t.Errorf("isBreakerSuccess(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

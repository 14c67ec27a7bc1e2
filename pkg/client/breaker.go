package client

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

var pairsCircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "pairs_circuit_breaker_state",
	Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
}, []string{"name"})

// newBreaker builds a breaker that trips after threshold consecutive
// server or network failures. Returns nil when threshold is 0.
func newBreaker(name string, threshold uint32, timeout time.Duration, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if threshold == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	pairsCircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			pairsCircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn().
				Str("circuit", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// isBreakerSuccess treats client errors and caller cancellation as
// successes: neither says anything about the endpoint's health.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.ErrorClass == ErrorClassClient
	}
	return false
}

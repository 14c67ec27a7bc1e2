// Package ratelimit implements client-side request gating for the pairs
// endpoint. It combines a local token bucket with the server's advertised
// quota from the X-RateLimit-Remaining, X-RateLimit-Reset and Retry-After
// headers.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "pairs:rate_limit:remaining"
	RedisKeyResetTimestamp = "pairs:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "pairs:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests while the reset lies in the future.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning applies throttling below this value.
	RemainingThresholdWarning = 5

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 20
)

// State represents the server-advertised quota.
type State struct {
	// Remaining is the number of requests the server still accepts in the window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// DefaultState is assumed until the server reports its quota.
func DefaultState() *State {
	now := time.Now()
	return &State{
		Remaining:  100,
		ResetAt:    now,
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests must be blocked until reset.
func (s *State) NeedsCriticalBlock() bool {
	return s.Remaining < RemainingThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < RemainingThresholdWarning && !s.NeedsCriticalBlock() && s.TimeUntilReset() > 0
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}

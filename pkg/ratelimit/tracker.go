package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the server quota is exhausted.
var ErrRateLimited = errors.New("rate limit exhausted")

// Header names read from endpoint responses.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// ThrottleDelay is the pause applied in the warning state.
var ThrottleDelay = 1 * time.Second

// DefaultMaxStateAge bounds how long a stored quota is trusted.
const DefaultMaxStateAge = time.Hour

// Prometheus metrics for rate limit tracking.
var (
	pairsRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pairs_rate_limit_remaining",
		Help: "Requests remaining in the current server rate limit window",
	})

	pairsRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairs_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the server quota was exhausted",
	})

	pairsRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairs_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to a low server quota",
	})
)

// Config holds tracker configuration.
type Config struct {
	// RequestsPerSecond for the local token bucket. <= 0 disables it.
	RequestsPerSecond float64

	// Burst size of the local token bucket.
	Burst int

	// MaxStateAge is how long a stored quota is trusted. Older state, such
	// as one left in Redis by a process that stopped updating it, is
	// ignored. <= 0 means DefaultMaxStateAge.
	MaxStateAge time.Duration
}

// Tracker gates outgoing requests.
type Tracker struct {
	store       Store
	limiter     *rate.Limiter
	maxStateAge time.Duration
	logger      zerolog.Logger
}

// NewTracker creates a tracker. A nil store falls back to MemoryStore.
func NewTracker(store Store, cfg Config, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	maxStateAge := cfg.MaxStateAge
	if maxStateAge <= 0 {
		maxStateAge = DefaultMaxStateAge
	}
	return &Tracker{
		store:       store,
		limiter:     limiter,
		maxStateAge: maxStateAge,
		logger:      logger,
	}
}

// GetState returns the current server quota.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	return t.store.Load(ctx)
}

// Allow blocks until a request may be sent. It returns ErrRateLimited when
// the server quota is exhausted and the window has not reset yet.
func (t *Tracker) Allow(ctx context.Context) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for token: %w", err)
		}
	}

	state, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}

	if state.IsStale(t.maxStateAge) {
		t.logger.Debug().
			Time("last_update", state.LastUpdate).
			Msg("Ignoring stale rate limit state")
		return nil
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Server quota exhausted - blocking request")
		pairsRateLimitBlocksTotal.Inc()
		return fmt.Errorf("%w: resets in %s", ErrRateLimited, state.TimeUntilReset().Round(time.Second))
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Server quota low - throttling request")
		pairsRateLimitThrottlesTotal.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ThrottleDelay):
		}
	}

	return nil
}

// UpdateFromHeaders records the quota advertised in response headers.
// Responses without rate limit headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	now := time.Now()

	if retryAfter := headers.Get(HeaderRetryAfter); retryAfter != "" {
		resetAt, err := parseRetryAfter(retryAfter, now)
		if err != nil {
			return err
		}
		return t.save(ctx, &State{Remaining: 0, ResetAt: resetAt, LastUpdate: now})
	}

	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	return t.save(ctx, &State{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	})
}

func (t *Tracker) save(ctx context.Context, state *State) error {
	state.UpdateHealth()
	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	pairsRateLimitRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Server quota CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Server quota WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate limit state updated")
	}
	return nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Time, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		return now.Add(time.Duration(seconds) * time.Second), nil
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s header: %w", HeaderRetryAfter, err)
	}
	return at, nil
}

// Package client provides the HTTP client for the pairs endpoint with rate
// limiting, optional page caching, retries and a circuit breaker.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/pairs-client/pkg/cache"
	"github.com/Sternrassler/pairs-client/pkg/logging"
	"github.com/Sternrassler/pairs-client/pkg/pairs"
	"github.com/Sternrassler/pairs-client/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Prometheus metrics for client operations.
var (
	pairsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairs_requests_total",
		Help: "Total pairs endpoint requests by endpoint and status",
	}, []string{"endpoint", "status"})

	pairsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pairs_request_duration_seconds",
		Help:    "Pairs endpoint request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	pairsErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairs_errors_total",
		Help: "Total pairs endpoint errors by class",
	}, []string{"class"})

	pairsRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairs_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	pairsRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pairs_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	pairsRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairs_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

var tracer = otel.Tracer("github.com/Sternrassler/pairs-client/pkg/client")

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client talks to the pairs endpoint. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	breaker     *gobreaker.CircuitBreaker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the pairs service, e.g. "http://localhost:8000"
	BaseURL string

	// User-Agent header, e.g. "pairs-client/0.1.0"
	UserAgent string

	// Timeout per HTTP request
	Timeout time.Duration

	// Redis enables the page cache and shares rate limit state (optional)
	Redis *redis.Client

	// CacheTTL applies to pages without freshness headers
	CacheTTL time.Duration

	// Rate Limiting
	RateLimit float64 // Requests per second, 0 disables the local bucket
	RateBurst int

	// Retry. MaxRetries 0 sends exactly one request per call.
	MaxRetries     int
	InitialBackoff time.Duration

	// Circuit breaker. 0 disables it.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:          baseURL,
		UserAgent:        userAgent,
		Timeout:          30 * time.Second,
		CacheTTL:         cache.DefaultTTL,
		RateLimit:        10,
		RateBurst:        5,
		MaxRetries:       0,
		InitialBackoff:   1 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("pairs-client")

	var store ratelimit.Store
	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		store = ratelimit.NewRedisStore(cfg.Redis)
		cacheManager = cache.NewManager(cfg.Redis)
	}

	rateLimiter := ratelimit.NewTracker(store, ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.RateBurst,
	}, logger)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		rateLimiter: rateLimiter,
		cache:       cacheManager,
		breaker:     newBreaker("pairs-endpoint", cfg.BreakerThreshold, cfg.BreakerTimeout, logger),
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs an HTTP request with rate limiting, the circuit breaker and
// retries. Any non-2xx status is returned as *FetchError with the body
// closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		pairsRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.rateLimiter.Allow(ctx); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
		pairsRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Msg("Executing request")

	if c.breaker == nil {
		return c.doWithRetry(req)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			pairsRequestsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request rejected by circuit breaker")
			return nil, fmt.Errorf("circuit breaker %s: %w", c.breaker.Name(), err)
		}
		return nil, err
	}
	return out.(*http.Response), nil
}

// doWithRetry sends req until it succeeds or the retry policy gives up.
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path
	policy := RetryConfig{
		MaxAttempts:    c.config.MaxRetries + 1,
		InitialBackoff: c.config.InitialBackoff,
	}

	var resp *http.Response
	attempt := 0

	err := retryWithBackoff(ctx, policy, func() (ErrorClass, error) {
		attempt++

		attemptReq := req
		if attempt > 1 {
			var err error
			attemptReq, err = rewind(req)
			if err != nil {
				return ErrorClassClient, err
			}
		}

		r, err := c.httpClient.Do(attemptReq)
		if err != nil {
			errClass := c.classifyError(nil, err)
			c.logger.Error().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).Msg("HTTP request failed")
			pairsErrorsTotal.WithLabelValues(string(errClass)).Inc()
			pairsRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return errClass, err
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, r.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		status := strconv.Itoa(r.StatusCode)
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			errClass := c.classifyError(r, nil)
			pairsErrorsTotal.WithLabelValues(string(errClass)).Inc()
			pairsRequestsTotal.WithLabelValues(endpoint, status).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", r.StatusCode).
				Str("error_class", string(errClass)).
				Int("attempt", attempt).
				Msg("Request error")

			io.Copy(io.Discard, r.Body)
			r.Body.Close()

			return errClass, &FetchError{
				StatusCode: r.StatusCode,
				Endpoint:   endpoint,
				ErrorClass: errClass,
				Status:     r.Status,
			}
		}

		pairsRequestsTotal.WithLabelValues(endpoint, status).Inc()
		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// rewind clones req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replay request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// classifyError categorizes a failure for observability and retry decisions.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// FetchPairs fetches one page. It implements pagination.Fetcher.
func (c *Client) FetchPairs(ctx context.Context, preq pairs.Request) (*pairs.Response, error) {
	ctx, span := tracer.Start(ctx, "pairs.FetchPairs")
	defer span.End()

	resp, err := c.FetchPage(ctx, preq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var page pairs.Response
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		err = fmt.Errorf("decode pairs response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("pairs.items", len(page.Items)))
	return &page, nil
}

// FetchPage fetches one page and returns the endpoint's 2xx response with
// the body unread; the caller closes it. With caching enabled the response
// carries X-Cache: HIT when served from Redis and X-Cache: MISS otherwise.
func (c *Client) FetchPage(ctx context.Context, preq pairs.Request) (*http.Response, error) {
	preq.Limit = pairs.NormalizeLimit(preq.Limit)
	if preq.UserID == "" {
		preq.UserID = pairs.DefaultUserID
	}

	ctx, span := tracer.Start(ctx, "pairs.FetchPage", trace.WithAttributes(
		attribute.String("pairs.user_id", preq.UserID),
		attribute.Int("pairs.limit", preq.Limit),
		attribute.Bool("pairs.has_cursor", preq.Cursor != ""),
	))
	defer span.End()

	key := cache.CacheKey{
		Endpoint: pairs.PathPairs,
		UserID:   preq.UserID,
		Limit:    preq.Limit,
		Cursor:   preq.Cursor,
	}

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil && json.Valid(entry.Data):
			span.SetAttributes(attribute.Bool("pairs.cache_hit", true))
			c.logger.Debug().Str("key", key.String()).Msg("Page served from cache")
			return cache.EntryToResponse(entry), nil
		case err == nil:
			c.logger.Warn().Str("key", key.String()).Msg("Discarding undecodable cached page")
			_ = c.cache.Delete(ctx, key)
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
	}

	body, err := json.Marshal(preq)
	if err != nil {
		return nil, fmt.Errorf("marshal pairs request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pairs.PathPairs, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if c.cache != nil {
		// ResponseToEntry restores resp.Body after reading it.
		entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("read pairs response: %w", err)
		}
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache page")
		}
		resp.Header.Set("X-Cache", "MISS")
	}

	return resp, nil
}

// RecordInteraction sends a user's rating/seen/starred update for a pair.
// Cached pages of that user are invalidated on success.
func (c *Client) RecordInteraction(ctx context.Context, in pairs.Interaction) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if in.UserID == "" {
		in.UserID = pairs.DefaultUserID
	}

	ctx, span := tracer.Start(ctx, "pairs.RecordInteraction", trace.WithAttributes(
		attribute.String("pairs.user_id", in.UserID),
		attribute.String("pairs.pair_id", string(in.PairID)),
	))
	defer span.End()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pairs.PathInteractions, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if c.cache != nil {
		removed, err := c.cache.InvalidateUser(ctx, pairs.PathPairs, in.UserID)
		if err != nil {
			c.logger.Warn().Err(err).Str("user_id", in.UserID).Msg("Failed to invalidate cached pages")
		} else if removed > 0 {
			c.logger.Debug().Int("pages", removed).Str("user_id", in.UserID).Msg("Invalidated cached pages")
		}
	}
	return nil
}

// Ping checks that the service answers on its root path.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetCache returns the cache manager, nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/pairs-client/pkg/client"
	"github.com/Sternrassler/pairs-client/pkg/metrics"
	"github.com/Sternrassler/pairs-client/pkg/pairs"
	"github.com/Sternrassler/pairs-client/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// maxBodyBytes limits proxied request bodies.
const maxBodyBytes = 1 << 20

// pairsService is the part of *client.Client the proxy uses.
type pairsService interface {
	FetchPage(ctx context.Context, req pairs.Request) (*http.Response, error)
	RecordInteraction(ctx context.Context, in pairs.Interaction) error
	Ping(ctx context.Context) error
}

type routerDeps struct {
	Service pairsService
	Redis   *redis.Client // optional
	Logger  zerolog.Logger
}

// errorBody is the JSON body of every proxy error response.
type errorBody struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// newRouter wires the proxy routes:
//
//	GET  /health        liveness
//	GET  /ready         upstream and Redis reachability
//	GET  /metrics       Prometheus
//	POST /pairs         one page through the client, body passed through
//	POST /interactions  interaction through the client
func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	h := &handler{service: deps.Service, redis: deps.Redis, logger: deps.Logger}

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post(pairs.PathPairs, h.fetchPairs)
	r.Post(pairs.PathInteractions, h.recordInteraction)

	return r
}

type handler struct {
	service pairsService
	redis   *redis.Client
	logger  zerolog.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "upstream unavailable: " + err.Error()})
		return
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "redis unavailable: " + err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handler) fetchPairs(w http.ResponseWriter, r *http.Request) {
	var req pairs.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	resp, err := h.service.FetchPage(r.Context(), req)
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	defer resp.Body.Close()

	// The page is relayed byte for byte so IDs and explicit nulls keep
	// their upstream encoding.
	for _, name := range []string{"Content-Type", "Cache-Control", "X-Cache"} {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Failed to relay page")
	}
}

func (h *handler) recordInteraction(w http.ResponseWriter, r *http.Request) {
	var in pairs.Interaction
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	if err := h.service.RecordInteraction(r.Context(), in); err != nil {
		if errors.Is(err, pairs.ErrInvalidInteraction) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		h.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeUpstreamError maps client errors onto proxy responses. Upstream 4xx
// statuses pass through; everything else is a gateway failure.
func (h *handler) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn().
		Err(err).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("Upstream request failed")

	if code, ok := client.StatusCode(err); ok {
		status := http.StatusBadGateway
		if code >= 400 && code < 500 {
			status = code
		}
		writeJSON(w, status, errorBody{Error: err.Error(), UpstreamStatus: code})
		return
	}

	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: err.Error()})
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			event := logger.Info()
			switch {
			case status >= 500:
				event = logger.Error()
			case status >= 400:
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("HTTP request")
		})
	}
}

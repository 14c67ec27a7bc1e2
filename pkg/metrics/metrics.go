// Package metrics exposes the Prometheus registry used by the pairs client.
// Collectors live in their own packages (client, cache, ratelimit,
// pagination) and register through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - pairs_requests_total{endpoint, status} (Counter)
//   - pairs_request_duration_seconds{endpoint} (Histogram)
//   - pairs_errors_total{class} (Counter): client, server, rate_limit, network
//   - pairs_retries_total{error_class} (Counter)
//   - pairs_retry_backoff_seconds{error_class} (Histogram)
//   - pairs_retry_exhausted_total{error_class} (Counter)
//   - pairs_circuit_breaker_state{name} (Gauge): 0 closed, 1 half-open, 2 open
//
// Cache Metrics (pkg/cache):
//   - pairs_cache_hits_total{layer="redis"} (Counter)
//   - pairs_cache_misses_total (Counter)
//   - pairs_cache_size_bytes{layer="redis"} (Gauge)
//   - pairs_cache_errors_total{operation} (Counter)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pairs_rate_limit_remaining (Gauge)
//   - pairs_rate_limit_blocks_total (Counter)
//   - pairs_rate_limit_throttles_total (Counter)
//
// Paging Metrics (pkg/pagination):
//   - pairs_pages_loaded_total (Counter)
//   - pairs_items_loaded_total (Counter)
//   - pairs_load_skipped_total{reason} (Counter): loading, reached_end
//   - pairs_load_failures_total (Counter)
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(pairs_cache_hits_total[5m])) /
//	(sum(rate(pairs_cache_hits_total[5m])) + sum(rate(pairs_cache_misses_total[5m])))
//
//	# P95 Page Latency
//	histogram_quantile(0.95, rate(pairs_request_duration_seconds_bucket{endpoint="/pairs"}[5m]))

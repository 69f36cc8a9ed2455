// Package metrics exposes the Prometheus registry used by the search client.
// Metrics are defined with promauto in their own packages (flickr, cache,
// ratelimit, pagination) to keep those packages free of a shared dependency.
//
// This package provides the HTTP handler and the metric catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's promauto collectors use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// Fetch Client Metrics (pkg/flickr):
//   - flickr_requests_total{status} (Counter): Searches by outcome (HTTP status, cached, quota_exceeded, circuit_open, network_error, api, malformed)
//   - flickr_request_duration_seconds (Histogram): Search duration including cache hits and retries
//   - flickr_errors_total{class} (Counter): Errors by class (client, server, network, api, malformed)
//   - flickr_breaker_state (Gauge): Circuit breaker state (0 closed, 1 half-open, 2 open)
//
// Retry Metrics (pkg/flickr):
//   - flickr_retries_total{error_class} (Counter): Retry attempts by error class
//   - flickr_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - flickr_retry_exhausted_total{error_class} (Counter): Searches that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - flickr_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - flickr_cache_misses_total (Counter): Cache misses
//   - flickr_cache_errors_total{operation} (Counter): Cache operation errors
//
// Quota Metrics (pkg/ratelimit):
//   - flickr_quota_remaining (Gauge): API calls left in the current hour window
//   - flickr_quota_blocks_total (Counter): Requests refused because the quota was used up
//   - flickr_quota_throttles_total (Counter): Requests slowed down near the end of the quota
//
// Pagination Metrics (pkg/pagination):
//   - flickr_pagination_fetches_total{kind, outcome} (Counter): Page fetches by kind (first, more) and outcome (success, failed, canceled)
//   - flickr_pagination_stale_callbacks_total (Counter): Completions dropped because their request was superseded
//   - flickr_pagination_queries_total{kind} (Counter): Executed queries by kind (search, empty)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(flickr_cache_hits_total[5m])) /
//   (sum(rate(flickr_cache_hits_total[5m])) + sum(rate(flickr_cache_misses_total[5m])))
//
//   # Quota Headroom
//   flickr_quota_remaining < 360
//
//   # Pagination Failure Rate
//   sum(rate(flickr_pagination_fetches_total{kind="more",outcome="failed"}[5m]))
//
//   # P95 Search Latency
//   histogram_quantile(0.95, rate(flickr_request_duration_seconds_bucket[5m]))

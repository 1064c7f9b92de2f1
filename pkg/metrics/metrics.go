// Package metrics exposes the Prometheus registry used by the query generator.
// All metrics are defined in their respective packages (cache, generator,
// orchestrator, ratelimit, catalog, api) to maintain modularity and avoid circular
// dependencies.
//
// This package provides the scrape handler and a reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the query generator.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer for Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// Metrics Documentation
//
// Store Metrics (pkg/cache, pkg/cache/pgstore, pkg/cache/sqlitestore):
//   - querygen_store_hits_total{backend} (Counter): Entries found by backend
//   - querygen_store_misses_total{backend} (Counter): Fingerprints without an entry
//   - querygen_store_writes_total{backend, result} (Counter): Conditional writes (stored, lost)
//   - querygen_store_errors_total{backend, operation} (Counter): Backend failures
//
// Pipeline Metrics (pkg/orchestrator):
//   - querygen_products_total{outcome} (Counter): Products by outcome (cache, generated, shared, validation, transient, permanent)
//   - querygen_batch_duration_seconds (Histogram): Batch processing time
//   - querygen_batch_size (Histogram): Products per batch
//   - querygen_generations_in_flight (Gauge): Generations holding a concurrency slot
//   - querygen_store_fallbacks_total{operation} (Counter): Tolerated store failures
//
// Generator Metrics (pkg/generator):
//   - querygen_llm_requests_total{result} (Counter): LLM calls by result
//   - querygen_llm_request_duration_seconds (Histogram): LLM call latency
//   - querygen_llm_tokens_total{type} (Counter): Prompt and completion tokens
//   - querygen_generation_errors_total{kind, class} (Counter): Generation failures
//   - querygen_generation_retries_total{error_class} (Counter): Retry attempts
//   - querygen_generation_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - querygen_generation_retry_exhausted_total{error_class} (Counter): Generations that used every attempt
//
// Rate Limit Metrics (pkg/ratelimit):
//   - querygen_llm_requests_remaining (Gauge): Provider request budget in the current window
//   - querygen_llm_rate_limit_blocks_total (Counter): Calls blocked on an exhausted budget
//   - querygen_llm_rate_limit_throttles_total (Counter): Calls delayed on a low budget
//
// HTTP Metrics (internal/api):
//   - querygen_http_requests_total{route, status} (Counter): Requests by route and status
//   - querygen_http_request_duration_seconds{route} (Histogram): Request latency by route
//
// Catalog Metrics (pkg/catalog):
//   - querygen_catalog_pages_total{status} (Counter): Precompute pages (ok, failed)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(querygen_products_total{outcome="cache"}[5m])) /
//   sum(rate(querygen_products_total[5m]))
//
//   # Duplicate generations avoided
//   rate(querygen_products_total{outcome="shared"}[5m])
//
//   # Provider budget running low
//   querygen_llm_requests_remaining < 10
//
//   # P95 LLM latency
//   histogram_quantile(0.95, rate(querygen_llm_request_duration_seconds_bucket[5m]))

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the cache-with-fallback pipeline.
var (
	productsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygen_products_total",
		Help: "Total processed products by outcome (cache, generated, shared, or error type)",
	}, []string{"outcome"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "querygen_batch_duration_seconds",
		Help:    "Batch processing duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "querygen_batch_size",
		Help:    "Number of products per batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	generationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "querygen_generations_in_flight",
		Help: "Number of generations currently holding a concurrency slot",
	})

	storeFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygen_store_fallbacks_total",
		Help: "Store failures tolerated by the pipeline by operation",
	}, []string{"operation"}) // "get", "put"
)

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Write outcomes for the CacheWrites result label.
const (
	WriteStored = "stored"
	WriteLost   = "lost"
)

var (
	// CacheHits tracks lookups that found an entry, by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygen_store_hits_total",
			Help: "Total number of store lookups that found an entry",
		},
		[]string{"backend"}, // "memory", "redis", "postgres", "sqlite"
	)

	// CacheMisses tracks lookups without an entry, by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygen_store_misses_total",
			Help: "Total number of store lookups without an entry",
		},
		[]string{"backend"},
	)

	// CacheWrites tracks conditional writes by outcome
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygen_store_writes_total",
			Help: "Total number of conditional writes by outcome",
		},
		[]string{"backend", "result"}, // result: "stored", "lost"
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygen_store_errors_total",
			Help: "Total number of store operation errors",
		},
		[]string{"backend", "operation"}, // "get", "put", "delete"
	)
)

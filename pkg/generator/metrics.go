package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygen_llm_requests_total",
		Help: "Total LLM requests by result (ok, blocked or error class)",
	}, []string{"result"})

	llmRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "querygen_llm_request_duration_seconds",
		Help:    "LLM request duration in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
	})

	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygen_llm_tokens_total",
		Help: "Total LLM tokens consumed by type",
	}, []string{"type"}) // "prompt", "completion"

	generationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygen_generation_errors_total",
		Help: "Total generation errors by kind and class",
	}, []string{"kind", "class"})
)

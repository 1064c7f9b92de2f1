package generator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	generationRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygen_generation_retries_total",
		Help: "Total number of generation retry attempts by error class",
	}, []string{"error_class"})

	generationRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "querygen_generation_retry_backoff_seconds",
		Help:    "Backoff duration for generation retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	generationRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygen_generation_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial one).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// backoffFor returns the base backoff before attempt+1. Rate limited calls
// start from twice the initial backoff.
func (c RetryConfig) backoffFor(attempt int, class Class) time.Duration {
	backoff := c.InitialBackoff
	if class == ClassRateLimit {
		backoff *= 2
	}
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * mult)
		if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		return c.MaxBackoff
	}
	return backoff
}

// Retry executes fn with exponential backoff. Only Transient failures (see
// Classify) are retried; anything else is returned immediately. It respects
// context cancellation and adds ±20% jitter to prevent thundering herd.
func Retry(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr *GenerationError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(lastErr.Class)).
					Int("attempt", attempt).
					Msg("Generation succeeded after retry")
			}
			return nil
		}

		lastErr = Classify(err)
		if lastErr.Kind != Transient {
			return lastErr
		}

		if attempt >= maxAttempts {
			break
		}

		class := string(lastErr.Class)
		generationRetriesTotal.WithLabelValues(class).Inc()

		backoff := config.backoffFor(attempt, lastErr.Class)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		generationRetryBackoffSeconds.WithLabelValues(class).Observe(jitter.Seconds())

		logger.Debug().
			Err(err).
			Str("error_class", class).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying generation after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", class).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, lastErr)
		case <-timer.C:
		}
	}

	generationRetryExhaustedTotal.WithLabelValues(string(lastErr.Class)).Inc()
	logger.Warn().
		Str("error_class", string(lastErr.Class)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}

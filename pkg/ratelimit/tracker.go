package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	llmRequestsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "querygen_llm_requests_remaining",
		Help: "Number of requests remaining in the current LLM rate limit window",
	})

	llmRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "querygen_llm_rate_limit_blocks_total",
		Help: "Total number of generation calls blocked due to an exhausted request budget",
	})

	llmRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "querygen_llm_rate_limit_throttles_total",
		Help: "Total number of generation calls throttled due to a low request budget",
	})
)

const (
	// DefaultThrottleDelay is how long a call waits when the budget is in the warning range.
	DefaultThrottleDelay = time.Second

	// stateTTLPadding keeps state in Redis a little past the window reset.
	stateTTLPadding = time.Minute
)

// Tracker monitors the LLM provider's request budget and gates requests.
type Tracker struct {
	redis         *redis.Client
	logger        zerolog.Logger
	throttleDelay time.Duration
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
	}
}

// SetThrottleDelay overrides the warning-range delay. Values <= 0 disable throttling.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// defaultState is returned until the provider has reported real data.
func defaultState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		RequestsRemaining: RequestThresholdHealthy * 2,
		LastUpdate:        now,
		IsHealthy:         true,
	}
}

// GetState retrieves the current rate limit state from Redis.
// Returns a default healthy state if no data exists in Redis.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	vals, err := t.redis.MGet(ctx, RedisKeyRequestsRemaining, RedisKeyResetAt, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if vals[0] == nil {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return defaultState(), nil
	}

	remaining, err := parseInt(vals[0])
	if err != nil {
		return nil, fmt.Errorf("parse requests remaining: %w", err)
	}
	resetMillis, err := parseInt(vals[1])
	if err != nil {
		return nil, fmt.Errorf("parse reset timestamp: %w", err)
	}
	updateMillis, err := parseInt(vals[2])
	if err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}

	state := &RateLimitState{
		RequestsRemaining: int(remaining),
		ResetAt:           time.UnixMilli(resetMillis),
		LastUpdate:        time.UnixMilli(updateMillis),
	}
	state.UpdateHealth()

	return state, nil
}

func parseInt(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}

// ParseHeaders builds a state from provider response headers.
// ok is false when the response carries no rate limit information.
func ParseHeaders(headers http.Header, now time.Time) (state *RateLimitState, ok bool, err error) {
	remainStr := strings.TrimSpace(headers.Get(HeaderRemainingRequests))
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemainingRequests, err)
	}

	resetStr := strings.TrimSpace(headers.Get(HeaderResetRequests))
	if resetStr == "" {
		return nil, false, fmt.Errorf("%s header missing", HeaderResetRequests)
	}

	reset, err := time.ParseDuration(resetStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderResetRequests, err)
	}
	if reset < 0 {
		reset = 0
	}

	state = &RateLimitState{
		RequestsRemaining: remain,
		ResetAt:           now.Add(reset),
		LastUpdate:        now,
	}
	state.UpdateHealth()
	return state, true, nil
}

// UpdateFromHeaders parses provider rate limit headers and updates Redis state.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		// Not every provider or endpoint reports a budget.
		return nil
	}

	ttl := state.TimeUntilReset() + stateTTLPadding

	_, err = t.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, RedisKeyRequestsRemaining, state.RequestsRemaining, ttl)
		pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.UnixMilli(), ttl)
		pipe.Set(ctx, RedisKeyLastUpdate, state.LastUpdate.UnixMilli(), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	llmRequestsRemaining.Set(float64(state.RequestsRemaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("requests_remaining", state.RequestsRemaining).
			Time("reset_at", state.ResetAt).
			Msg("LLM request budget CRITICAL - generation calls will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("requests_remaining", state.RequestsRemaining).
			Time("reset_at", state.ResetAt).
			Msg("LLM request budget WARNING - generation calls will be throttled")
	default:
		t.logger.Debug().
			Int("requests_remaining", state.RequestsRemaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("LLM rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current rate limit state.
// Returns false if the request should be blocked due to an exhausted budget.
// Returns true but may wait for throttling if in warning state.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("requests_remaining", state.RequestsRemaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("LLM request budget critical - blocking request")

		llmRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() && t.throttleDelay > 0 {
		t.logger.Warn().
			Int("requests_remaining", state.RequestsRemaining).
			Msg("LLM request budget low - throttling request")

		llmRateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

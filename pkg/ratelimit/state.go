// Package ratelimit tracks the LLM provider's request budget and gates calls.
// It reads the x-ratelimit-remaining-requests and x-ratelimit-reset-requests
// response headers and shares the resulting state across processes via Redis,
// so every generator instance backs off before the provider starts returning 429s.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRequestsRemaining = "qgen:ratelimit:requests_remaining"
	RedisKeyResetAt           = "qgen:ratelimit:reset_at"
	RedisKeyLastUpdate        = "qgen:ratelimit:last_update"
)

// Header names sent by OpenAI-compatible providers.
const (
	HeaderRemainingRequests = "x-ratelimit-remaining-requests"
	HeaderResetRequests     = "x-ratelimit-reset-requests"
)

// Thresholds for rate limit decisions.
const (
	// RequestThresholdCritical blocks requests when the remaining budget falls below this value.
	RequestThresholdCritical = 2

	// RequestThresholdWarning applies throttling when the remaining budget falls below this value.
	RequestThresholdWarning = 10

	// RequestThresholdHealthy indicates normal operation.
	// When requests remaining is at or above this value, no restrictions apply.
	RequestThresholdHealthy = 50
)

// RateLimitState represents the provider's current request budget.
// This state is shared across all generator instances via Redis.
type RateLimitState struct {
	// RequestsRemaining is the number of requests left in the current window.
	RequestsRemaining int `json:"requests_remaining"`

	// ResetAt is when the request window resets.
	// Calculated from the x-ratelimit-reset-requests header (a duration such as "1s" or "6m0s").
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is the timestamp when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when RequestsRemaining >= RequestThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
// A window that has already reset never blocks.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.RequestsRemaining < RequestThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be throttled due to warning threshold.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.RequestsRemaining < RequestThresholdWarning &&
		s.TimeUntilReset() > 0 &&
		!s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the request window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current RequestsRemaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.RequestsRemaining >= RequestThresholdHealthy
}

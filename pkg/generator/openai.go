package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

// selfCheckMaxPerBucket caps the refined output of the self-check pass.
const selfCheckMaxPerBucket = 2

// RateGate gates upstream calls on shared rate-limit state.
// ratelimit.Tracker implements it.
type RateGate interface {
	ShouldAllowRequest(ctx context.Context) (bool, error)
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

// Config holds the OpenAI generator configuration.
type Config struct {
	// APIKey for the backend. Optional for local OpenAI-compatible servers.
	APIKey string

	// BaseURL of an OpenAI-compatible API. Empty selects api.openai.com.
	BaseURL string

	// Model is the chat model (e.g., "gpt-4o-mini").
	Model string

	Temperature float32
	MaxTokens   int

	// Timeout bounds a single HTTP call.
	Timeout time.Duration

	// RequestsPerSecond and Burst configure the client-side limiter.
	// Zero RequestsPerSecond disables it.
	RequestsPerSecond float64
	Burst             int

	// PerBucket is the number of queries requested for each bucket.
	PerBucket int

	// SelfCheck enables a second review pass over the first result.
	SelfCheck bool

	// JSONMode requests a JSON object response format. Some compatible
	// servers do not support it.
	JSONMode bool

	// HTTPClient overrides the default instrumented client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration for the given API key.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:            apiKey,
		Model:             "gpt-4o-mini",
		Temperature:       0.7,
		MaxTokens:         600,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		PerBucket:         2,
		JSONMode:          true,
	}
}

// OpenAIGenerator implements Generator with the chat completions API.
type OpenAIGenerator struct {
	client  *openai.Client
	config  Config
	limiter *rate.Limiter
	gate    RateGate
	logger  zerolog.Logger
}

// NewOpenAIGenerator creates a generator. gate may be nil.
func NewOpenAIGenerator(cfg Config, gate RateGate, logger zerolog.Logger) (*OpenAIGenerator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.PerBucket < 1 {
		return nil, fmt.Errorf("per_bucket must be >= 1 (got %d)", cfg.PerBucket)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "dummy-key" // Local services don't need a real key
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = cfg.HTTPClient
	if clientConfig.HTTPClient == nil {
		clientConfig.HTTPClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		limiter: limiter,
		gate:    gate,
		logger:  logger.With().Str("component", "generator").Str("model", cfg.Model).Logger(),
	}, nil
}

// Model returns the model identifier.
func (g *OpenAIGenerator) Model() string {
	return g.config.Model
}

// Generate implements Generator. A failing self-check pass falls back to the
// first-pass queries.
func (g *OpenAIGenerator) Generate(ctx context.Context, p product.Product) ([]query.GeneratedQuery, error) {
	p = product.Clean(p)

	content, err := g.complete(ctx, UserPrompt(p, g.config.PerBucket), g.config.Temperature)
	if err != nil {
		return nil, err
	}

	queries, err := ParseQueries(content)
	if err != nil {
		g.recordFailure(p.ID, err)
		return nil, err
	}

	if !g.config.SelfCheck {
		return queries, nil
	}

	refined, err := g.selfCheck(ctx, p, queries)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("product_id", p.ID).
			Msg("Self-check pass failed, using first-pass output")
		return queries, nil
	}
	return refined, nil
}

func (g *OpenAIGenerator) selfCheck(ctx context.Context, p product.Product, first []query.GeneratedQuery) ([]query.GeneratedQuery, error) {
	firstJSON, err := json.Marshal(rawOutput{Queries: first})
	if err != nil {
		return nil, fmt.Errorf("marshal first pass: %w", err)
	}

	temperature := g.config.Temperature
	if temperature > 0.7 {
		temperature = 0.7
	}

	content, err := g.complete(ctx, SelfCheckPrompt(p, string(firstJSON), selfCheckMaxPerBucket), temperature)
	if err != nil {
		return nil, err
	}

	refined, err := ParseQueries(content)
	if err != nil {
		return nil, err
	}
	return query.CapPerBucket(refined, selfCheckMaxPerBucket), nil
}

// complete performs one chat completion and returns the message content.
func (g *OpenAIGenerator) complete(ctx context.Context, userPrompt string, temperature float32) (string, error) {
	if g.gate != nil {
		allowed, err := g.gate.ShouldAllowRequest(ctx)
		if err != nil {
			// Shared state unavailable; the local limiter still applies.
			g.logger.Warn().Err(err).Msg("Rate limit check failed")
		} else if !allowed {
			llmRequestsTotal.WithLabelValues("blocked").Inc()
			return "", NewTransient(ClassBlocked, "upstream rate limit critical", nil)
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", Classify(err)
		}
	}

	req := openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature:      temperature,
		MaxTokens:        g.config.MaxTokens,
		TopP:             0.9,
		FrequencyPenalty: 0.3,
		PresencePenalty:  0.2,
	}
	if g.config.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	llmRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		gerr := Classify(err)
		llmRequestsTotal.WithLabelValues(string(gerr.Class)).Inc()
		generationErrorsTotal.WithLabelValues(string(gerr.Kind), string(gerr.Class)).Inc()
		g.logger.Warn().
			Err(err).
			Str("error_class", string(gerr.Class)).
			Int("status", gerr.StatusCode).
			Msg("LLM request failed")
		return "", gerr
	}
	llmRequestsTotal.WithLabelValues("ok").Inc()
	llmTokensTotal.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	llmTokensTotal.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

	if g.gate != nil {
		if err := g.gate.UpdateFromHeaders(ctx, resp.Header()); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if len(resp.Choices) == 0 {
		return "", NewPermanent(ClassEmptyOutput, "response has no choices", nil)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		g.logger.Debug().Int("max_tokens", g.config.MaxTokens).Msg("Completion truncated at max tokens")
	}
	return choice.Message.Content, nil
}

func (g *OpenAIGenerator) recordFailure(productID string, err error) {
	gerr := Classify(err)
	generationErrorsTotal.WithLabelValues(string(gerr.Kind), string(gerr.Class)).Inc()
	g.logger.Warn().
		Err(err).
		Str("product_id", productID).
		Str("error_class", string(gerr.Class)).
		Msg("Model output rejected")
}

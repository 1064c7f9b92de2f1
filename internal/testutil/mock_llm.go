// Package testutil provides testing utilities for the query generator.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Sternrassler/querygen/pkg/query"
)

// MockLLMResponse defines the behavior for one mock chat completion response.
type MockLLMResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockLLM is a configurable mock of an OpenAI-compatible chat completions
// endpoint. Queued responses are served in order; once the queue is empty
// the default response is used.
type MockLLM struct {
	server *httptest.Server

	mu       sync.Mutex
	queue    []MockLLMResponse
	fallback MockLLMResponse

	// Tracking
	RequestCount int
	Requests     []openai.ChatCompletionRequest
}

// NewMockLLM creates a mock server whose default response contains one
// query per bucket and style.
func NewMockLLM() *MockLLM {
	mock := &MockLLM{
		fallback: NewCompletionResponse(DefaultQueriesJSON("shirt")),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}

		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, req)
		resp := mock.fallback
		if len(mock.queue) > 0 {
			resp = mock.queue[0]
			mock.queue = mock.queue[1:]
		}
		mock.mu.Unlock()

		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the API base URL to configure clients with.
func (m *MockLLM) URL() string {
	return m.server.URL + "/v1"
}

// Close shuts down the mock server.
func (m *MockLLM) Close() {
	m.server.Close()
}

// Enqueue appends responses served before the default.
func (m *MockLLM) Enqueue(resps ...MockLLMResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resps...)
}

// SetDefault replaces the default response.
func (m *MockLLM) SetDefault(resp MockLLMResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockLLM) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// LastUserPrompt returns the user message of the most recent request.
func (m *MockLLM) LastUserPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return ""
	}
	for _, msg := range m.Requests[len(m.Requests)-1].Messages {
		if msg.Role == openai.ChatMessageRoleUser {
			return msg.Content
		}
	}
	return ""
}

// DefaultQueriesJSON returns model output with one short and one natural
// query for every bucket.
func DefaultQueriesJSON(noun string) string {
	queries := make([]query.GeneratedQuery, 0, 2*len(query.Buckets))
	for _, b := range query.Buckets {
		queries = append(queries,
			query.GeneratedQuery{Text: fmt.Sprintf("%s %s", b, noun), Style: query.StyleShort, Bucket: b},
			query.GeneratedQuery{Text: fmt.Sprintf("which %s is best for %s", noun, b), Style: query.StyleNatural, Bucket: b},
		)
	}
	data, _ := json.Marshal(map[string]any{"queries": queries})
	return string(data)
}

// NewCompletionResponse wraps content in a successful chat completion.
func NewCompletionResponse(content string) MockLLMResponse {
	body, _ := json.Marshal(openai.ChatCompletionResponse{
		ID:      "chatcmpl-test",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 120, CompletionTokens: 80, TotalTokens: 200},
	})
	return MockLLMResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type":                   "application/json",
			"x-ratelimit-limit-requests":     "500",
			"x-ratelimit-remaining-requests": "499",
			"x-ratelimit-reset-requests":     "120ms",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockLLMResponse {
	return newErrorResponse(http.StatusTooManyRequests, "Rate limit reached for requests", "requests", "rate_limit_exceeded")
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockLLMResponse {
	return newErrorResponse(http.StatusInternalServerError, "The server had an error while processing your request", "server_error", "")
}

// NewBadRequestResponse creates a 400 Bad Request response.
func NewBadRequestResponse() MockLLMResponse {
	return newErrorResponse(http.StatusBadRequest, "Invalid request", "invalid_request_error", "")
}

func newErrorResponse(status int, message, typ, code string) MockLLMResponse {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    typ,
			"code":    code,
		},
	})
	return MockLLMResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type":                   "application/json",
			"x-ratelimit-remaining-requests": "0",
			"x-ratelimit-reset-requests":     "1s",
		},
	}
}

package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  Kind
		wantClass Class
	}{
		{
			name:      "429 is transient rate limit",
			err:       &openai.APIError{HTTPStatusCode: 429, Message: "slow down"},
			wantKind:  Transient,
			wantClass: ClassRateLimit,
		},
		{
			name:      "503 is transient server",
			err:       &openai.APIError{HTTPStatusCode: 503},
			wantKind:  Transient,
			wantClass: ClassServer,
		},
		{
			name:      "400 is permanent client",
			err:       &openai.APIError{HTTPStatusCode: 400},
			wantKind:  Permanent,
			wantClass: ClassClient,
		},
		{
			name:      "401 is permanent client",
			err:       &openai.RequestError{HTTPStatusCode: 401, Err: errors.New("unauthorized")},
			wantKind:  Permanent,
			wantClass: ClassClient,
		},
		{
			name:      "502 request error is transient",
			err:       &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")},
			wantKind:  Transient,
			wantClass: ClassServer,
		},
		{
			name:      "408 is transient timeout",
			err:       &openai.APIError{HTTPStatusCode: 408},
			wantKind:  Transient,
			wantClass: ClassTimeout,
		},
		{
			name:      "deadline exceeded",
			err:       fmt.Errorf("call: %w", context.DeadlineExceeded),
			wantKind:  Transient,
			wantClass: ClassTimeout,
		},
		{
			name:      "network error",
			err:       &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			wantKind:  Transient,
			wantClass: ClassNetwork,
		},
		{
			name:      "existing generation error is kept",
			err:       fmt.Errorf("wrapped: %w", NewPermanent(ClassSchema, "bad bucket", nil)),
			wantKind:  Permanent,
			wantClass: ClassSchema,
		},
		{
			name:      "unknown error is permanent",
			err:       errors.New("boom"),
			wantKind:  Permanent,
			wantClass: ClassUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.wantKind)
			}
			if got.Class != tt.wantClass {
				t.Errorf("Class = %s, want %s", got.Class, tt.wantClass)
			}
		})
	}

	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestGenerationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GenerationError
		expected string
	}{
		{
			name: "with status and wrapped error",
			err: &GenerationError{
				Kind: Transient, Class: ClassServer, StatusCode: 500,
				Message: "upstream failed", Err: errors.New("connection reset"),
			},
			expected: "transient generation error (server) status 500: upstream failed: connection reset",
		},
		{
			name:     "message only",
			err:      NewPermanent(ClassSchema, "query 2", nil),
			expected: "permanent generation error (schema_violation): query 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGenerationError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewTransient(ClassNetwork, "", inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
	if !IsTransient(fmt.Errorf("outer: %w", err)) {
		t.Error("IsTransient should see through wrapping")
	}
	if IsTransient(NewPermanent(ClassClient, "", nil)) {
		t.Error("permanent error reported as transient")
	}
}

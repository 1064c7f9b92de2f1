package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Common errors returned by the generator.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// Kind separates failures worth retrying from those that are not.
type Kind string

const (
	// Transient failures (rate limit, timeout, upstream 5xx) are retried.
	Transient Kind = "transient"

	// Permanent failures (rejected request, unusable output) are not retried.
	Permanent Kind = "permanent"
)

// Class is a finer classification used for metrics and logs.
type Class string

const (
	ClassRateLimit       Class = "rate_limit"
	ClassServer          Class = "server"
	ClassClient          Class = "client"
	ClassTimeout         Class = "timeout"
	ClassNetwork         Class = "network"
	ClassBlocked         Class = "blocked"
	ClassMalformedOutput Class = "malformed_output"
	ClassSchema          Class = "schema_violation"
	ClassEmptyOutput     Class = "empty_output"
	ClassUnknown         Class = "unknown"
)

// GenerationError is the failure type of Generator.Generate.
type GenerationError struct {
	Kind       Kind
	Class      Class
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s generation error (%s)", e.Kind, e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure may succeed on retry.
func (e *GenerationError) Temporary() bool {
	return e.Kind == Transient
}

// NewPermanent builds a Permanent error of the given class.
func NewPermanent(class Class, msg string, err error) *GenerationError {
	return &GenerationError{Kind: Permanent, Class: class, Message: msg, Err: err}
}

// NewTransient builds a Transient error of the given class.
func NewTransient(class Class, msg string, err error) *GenerationError {
	return &GenerationError{Kind: Transient, Class: class, Message: msg, Err: err}
}

// IsTransient reports whether err carries a Transient GenerationError.
func IsTransient(err error) bool {
	var gerr *GenerationError
	return errors.As(err, &gerr) && gerr.Kind == Transient
}

// Classify maps a backend error to a GenerationError. Errors that already are
// a GenerationError are returned unchanged.
func Classify(err error) *GenerationError {
	if err == nil {
		return nil
	}

	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, reqErr.HTTPStatus, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTransient(ClassTimeout, "deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewTransient(ClassTimeout, "cancelled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewTransient(ClassTimeout, "network timeout", err)
		}
		return NewTransient(ClassNetwork, "network error", err)
	}

	return NewPermanent(ClassUnknown, "", err)
}

// classifyStatus applies the HTTP status taxonomy: 429 and 5xx are
// transient, 408 is a timeout, any other 4xx is permanent.
func classifyStatus(status int, msg string, err error) *GenerationError {
	var gerr *GenerationError
	switch {
	case status == http.StatusTooManyRequests:
		gerr = NewTransient(ClassRateLimit, msg, err)
	case status == http.StatusRequestTimeout:
		gerr = NewTransient(ClassTimeout, msg, err)
	case status >= 500:
		gerr = NewTransient(ClassServer, msg, err)
	case status >= 400:
		gerr = NewPermanent(ClassClient, msg, err)
	default:
		// No status means the request never completed.
		gerr = NewTransient(ClassNetwork, msg, err)
	}
	gerr.StatusCode = status
	return gerr
}

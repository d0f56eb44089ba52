// Package agenterr classifies agent execution failures into a closed set of
// kinds, each with a fixed user-facing message, HTTP status and retry policy.
package agenterr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the category of an agent execution failure.
type Kind int

const (
	UnknownError Kind = iota
	ToolCallingError
	ContextOverflow
	MemoryError
	APIRateLimit
	TimeoutError
	AuthenticationError
	SafetyFilterError
)

// Response is what a terminal failure of a given kind turns into for the end
// user.
type Response struct {
	UserMessage string `json:"message"`
	HTTPStatus  int    `json:"status"`
	Retryable   bool   `json:"retryable"`
}

var responses = map[Kind]Response{
	ToolCallingError: {
		UserMessage: "I had trouble looking up your plan details. Please try again.",
		HTTPStatus:  http.StatusInternalServerError,
		Retryable:   true,
	},
	ContextOverflow: {
		UserMessage: "Our conversation has grown too long. Please start a new chat or ask a shorter question.",
		HTTPStatus:  http.StatusRequestEntityTooLarge,
		Retryable:   true,
	},
	MemoryError: {
		UserMessage: "I couldn't load your saved information right now. Please try again shortly.",
		HTTPStatus:  http.StatusServiceUnavailable,
		Retryable:   true,
	},
	APIRateLimit: {
		UserMessage: "I'm getting a lot of requests right now. Please wait a moment and try again.",
		HTTPStatus:  http.StatusTooManyRequests,
		Retryable:   false,
	},
	TimeoutError: {
		UserMessage: "That took longer than expected. Please try again.",
		HTTPStatus:  http.StatusGatewayTimeout,
		Retryable:   true,
	},
	AuthenticationError: {
		UserMessage: "The coaching service is temporarily unavailable.",
		HTTPStatus:  http.StatusInternalServerError,
		Retryable:   false,
	},
	SafetyFilterError: {
		UserMessage: "I can't help with that request. Please rephrase your question.",
		HTTPStatus:  http.StatusBadRequest,
		Retryable:   false,
	},
	UnknownError: {
		UserMessage: "Something went wrong. Please try again.",
		HTTPStatus:  http.StatusInternalServerError,
		Retryable:   true,
	},
}

var kindNames = map[Kind]string{
	UnknownError:        "UnknownError",
	ToolCallingError:    "ToolCallingError",
	ContextOverflow:     "ContextOverflow",
	MemoryError:         "MemoryError",
	APIRateLimit:        "ApiRateLimit",
	TimeoutError:        "TimeoutError",
	AuthenticationError: "AuthenticationError",
	SafetyFilterError:   "SafetyFilterError",
}

// String returns the kind's name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Response returns the fixed response for k. Out-of-range kinds resolve to
// UnknownError's response.
func (k Kind) Response() Response {
	if r, ok := responses[k]; ok {
		return r
	}
	return responses[UnknownError]
}

// Retryable reports whether retrying an operation that failed with k can
// succeed without backing off or fixing configuration.
func (k Kind) Retryable() bool {
	return k.Response().Retryable
}

// Kinds lists every kind in classification priority order, followed by
// UnknownError.
func Kinds() []Kind {
	return []Kind{
		ToolCallingError,
		ContextOverflow,
		MemoryError,
		APIRateLimit,
		TimeoutError,
		AuthenticationError,
		SafetyFilterError,
		UnknownError,
	}
}

// rules are evaluated top to bottom; the first kind with a matching keyword
// wins.
var rules = []struct {
	kind     Kind
	keywords []string
}{
	{ToolCallingError, []string{"tool", "function"}},
	{ContextOverflow, []string{"context", "token"}},
	{MemoryError, []string{"memory", "database"}},
	{APIRateLimit, []string{"rate limit", "quota"}},
	{TimeoutError, []string{"timeout"}},
	{AuthenticationError, []string{"api key"}},
	{SafetyFilterError, []string{"safety"}},
}

// ClassifyMessage maps an error message to a Kind by keyword inspection of
// its lowercased text.
func ClassifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.kind
			}
		}
	}
	return UnknownError
}

// Classify maps err to a Kind. A TurnError keeps its kind, deadline
// expiry is a timeout, cancellation is unknown (its message would otherwise
// read as a context overflow), and everything else is classified by message.
func Classify(err error) Kind {
	if err == nil {
		return UnknownError
	}

	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError
	}
	if errors.Is(err, context.Canceled) {
		return UnknownError
	}

	return ClassifyMessage(err.Error())
}

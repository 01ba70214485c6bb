package gemini

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned before any network call when no API key is configured.
var ErrMissingAPIKey = errors.New("gemini API key not configured")

// Reasons reported by Reason and carried by protocol errors.
const (
	ReasonMissingAPIKey     = "missing-api-key"
	ReasonTransport         = "transport-failure"
	ReasonNoResponseBody    = "no-response-body"
	ReasonUpstreamMessage   = "upstream-message"
	ReasonMalformedResponse = "malformed-response"
	ReasonInvalidJSON       = "invalid-json"
	ReasonSchemaViolation   = "schema-violation"
	ReasonCanceled          = "canceled"
	ReasonUnknown           = "unknown"
)

// TransportError is a network failure that outlived the retry budget.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("model service unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-success HTTP status from the model service. Message holds
// the upstream error message; it is empty when the body was not an error payload.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("model service returned status %d with no readable error", e.StatusCode)
}

// ContractError means the model's response did not match the expected shape.
// It is never repaired: a malformed answer must not become a plausible record.
type ContractError struct {
	Reason string
	Detail string
}

func (e *ContractError) Error() string {
	switch e.Reason {
	case ReasonInvalidJSON:
		return "model response is not valid JSON: " + e.Detail
	case ReasonSchemaViolation:
		return "model response does not match the expected fields: " + e.Detail
	default:
		return "model response format error: " + e.Detail
	}
}

// Reason classifies a pipeline error into one of the Reason* constants.
func Reason(err error) string {
	var (
		te *TransportError
		ae *APIError
		ce *ContractError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingAPIKey):
		return ReasonMissingAPIKey
	case errors.As(err, &te):
		return ReasonTransport
	case errors.As(err, &ae):
		if ae.Message != "" {
			return ReasonUpstreamMessage
		}
		return ReasonNoResponseBody
	case errors.As(err, &ce):
		return ce.Reason
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonUnknown
	}
}

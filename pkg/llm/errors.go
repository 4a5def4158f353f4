package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"

	"github.com/quorumlabs/council/pkg/models"
)

// Kind classifies a model-call failure.
type Kind string

// Failure kinds.
const (
	KindUnreachableEndpoint Kind = "unreachable_endpoint"
	KindModelNotLoaded      Kind = "model_not_loaded"
	KindTimeout             Kind = "timeout"
	KindProtocolError       Kind = "protocol_error"
	KindCancelled           Kind = "cancelled"
)

// Error is a classified model-call failure carrying the model it concerns.
type Error struct {
	Kind  Kind
	Model string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("model %s: %s: %v", e.Model, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TraceKind maps the failure kind to the error tag recorded in
// deliberation traces.
func (e *Error) TraceKind() models.ErrorKind {
	switch e.Kind {
	case KindUnreachableEndpoint:
		return models.ErrKindUnreachableEndpoint
	case KindModelNotLoaded:
		return models.ErrKindModelNotLoaded
	case KindTimeout:
		return models.ErrKindTimeout
	case KindCancelled:
		return models.ErrKindCancelled
	default:
		return models.ErrKindProtocolError
	}
}

// classify wraps an underlying transport/API error into a typed Error.
func classify(model string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Model: model, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Model: model, Err: err}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound || isMissingModelMessage(apiErr.Message) {
			return &Error{Kind: KindModelNotLoaded, Model: model, Err: err}
		}
		return &Error{Kind: KindProtocolError, Model: model, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Model: model, Err: err}
		}
		return &Error{Kind: KindUnreachableEndpoint, Model: model, Err: err}
	}

	return &Error{Kind: KindProtocolError, Model: model, Err: err}
}

// isMissingModelMessage matches the "model not found / not loaded" phrasing
// used by local OpenAI-compatible servers.
func isMissingModelMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "not loaded") ||
			strings.Contains(lower, "does not exist"))
}

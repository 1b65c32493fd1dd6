// Package errors builds gofulmen error envelopes for relay and CLI failures
// and writes them as JSON responses.
package errors

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/core/route"
	"github.com/namelens/guildrest/internal/server/middleware"
)

// Error codes. The unprefixed ones follow gofulmen naming.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeDatabase           = "DATABASE_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"

	CodeRateLimited   = "RATE_LIMITED"
	CodeCancelled     = "CANCELLED"
	CodeUpstreamError = "UPSTREAM_ERROR"
)

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

// NewRateLimitedError reports a call that stayed rate limited past its retry
// budget. retry_after is in seconds, as the upstream API reports it.
func NewRateLimitedError(ctx context.Context, retryAfter time.Duration, global bool) *errors.ErrorEnvelope {
	message := "rate limited by upstream"
	if global {
		message = "globally rate limited by upstream"
	}
	return withContext(wrap(ctx, CodeRateLimited, nil, message), map[string]any{
		"retry_after": retryAfter.Seconds(),
		"global":      global,
	})
}

// The Wrap helpers take the request context so the envelope carries its
// request ID.

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func WrapNotFound(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeNotFound, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeDatabase, err, message)
}

func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeExternalService, err, message)
}

func WrapTimeout(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeTimeout, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := correlationFrom(ctx)
	// No tracing is wired; the request ID doubles as the trace ID.
	envelope := errors.NewErrorEnvelope(code, message).
		WithCorrelationID(id).
		WithTraceID(id)
	if err != nil {
		envelope = withContext(envelope, map[string]any{"wrapped_error": err.Error()})
	}
	return envelope
}

// withContext merges fields into the envelope context, keeping the envelope
// unchanged if gofulmen rejects them.
func withContext(envelope *errors.ErrorEnvelope, fields map[string]any) *errors.ErrorEnvelope {
	updated, err := envelope.WithContext(fields)
	if err != nil {
		return envelope
	}
	return updated
}

func correlationFrom(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// FromDispatchError classifies an error returned by the dispatch engine or
// the route catalog.
func FromDispatchError(ctx context.Context, err error) *errors.ErrorEnvelope {
	var (
		rateLimit *engine.RateLimitError
		transport *engine.TransportError
		upstream  *engine.HTTPError
	)

	switch {
	case err == nil:
		return EnsureEnvelope(nil)
	case stderrors.As(err, &rateLimit):
		return NewRateLimitedError(ctx, rateLimit.RetryAfter, rateLimit.Global)
	case stderrors.Is(err, engine.ErrTimeout):
		return WrapTimeout(ctx, err, "request deadline exceeded")
	case stderrors.Is(err, engine.ErrCancelled):
		return wrap(ctx, CodeCancelled, err, "request cancelled")
	case stderrors.Is(err, route.ErrUnknownRoute):
		return WrapNotFound(ctx, err, "unknown route")
	case stderrors.Is(err, route.ErrMissingParam), stderrors.Is(err, engine.ErrInvalidCall):
		return WrapInvalidInput(ctx, err, "invalid call")
	case stderrors.As(err, &transport):
		return WrapExternalService(ctx, err, "upstream unreachable")
	case stderrors.As(err, &upstream):
		return withContext(wrap(ctx, CodeUpstreamError, err, "upstream returned an error"), map[string]any{
			"upstream_status": upstream.StatusCode,
		})
	default:
		return WrapInternal(ctx, err, "dispatch failed")
	}
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		envelope = errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		envelope, _ = envelope.WithSeverity(errors.SeverityCritical)
	case stderrors.As(err, &envelope) && envelope != nil:
	default:
		envelope = withContext(errors.NewErrorEnvelope(CodeInternal, "unexpected error"), map[string]any{
			"wrapped_error": err.Error(),
		})
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	}
	return envelope
}

// EnsureCorrelationID fills in a missing correlation ID from ctx, or a
// generated fallback.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil || envelope.CorrelationID != "" {
		return envelope
	}
	id := middleware.GetRequestID(ctx)
	if id == "" {
		id = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(id)
}

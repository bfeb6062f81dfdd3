package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

const tracerName = "github.com/dejobratic/shopdash"

func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, spanName, opts...)
}

func AddSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}

// SessionAttributes describes the caller without leaking credentials.
func SessionAttributes(s auth.Session) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("session.subject", s.Subject),
		attribute.String("session.role", string(s.Role)),
		attribute.String("session.shop_id", s.ShopID),
	}
}

func AddSpanEvent(span trace.Span, eventName string, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.AddEvent(eventName, trace.WithAttributes(attrs...))
}

// RecordSpanError records err on the span and tags it with ErrorType. Only
// internal errors mark the span as failed; caller mistakes and lost races
// leave the status unset.
func RecordSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	kind := ErrorType(err)
	span.RecordError(err)
	span.SetAttributes(attribute.String("error.type", kind))
	if kind == "internal" {
		span.SetStatus(codes.Error, err.Error())
	}
}

// ErrorType buckets err by the taxonomy the HTTP adapter maps to status codes.
func ErrorType(err error) string {
	var (
		validationErr *domain.ValidationError
		transitionErr *domain.InvalidTransitionError
		authErr       *domain.AuthorizationError
	)
	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &transitionErr):
		return "invalid_transition"
	case errors.As(err, &authErr):
		return "unauthorized"
	case errors.Is(err, ports.ErrNotFound):
		return "not_found"
	case errors.Is(err, ports.ErrConflict), errors.Is(err, ports.ErrClaimLost):
		return "conflict"
	default:
		return "internal"
	}
}

func SetSpanSuccess(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		return spanCtx.TraceID().String()
	}
	return ""
}

func SpanID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasSpanID() {
		return spanCtx.SpanID().String()
	}
	return ""
}

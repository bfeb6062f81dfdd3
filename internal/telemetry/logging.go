package telemetry

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/dejobratic/shopdash/internal/auth"
)

// NewLogger returns a JSON logger that stamps every record with the active
// trace and span ids and the caller's session, when present on the context.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	baseHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	handler := &contextHandler{baseHandler: baseHandler}
	return slog.New(handler)
}

// ParseLevel maps LOG_LEVEL values onto slog levels; unknown values mean info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type contextHandler struct {
	baseHandler slog.Handler
	groups      []string
	attrs       []slog.Attr
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.baseHandler.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := h.baseHandler

	if ctxAttrs := contextAttrs(ctx); len(ctxAttrs) > 0 {
		handler = handler.WithAttrs(ctxAttrs)
	}

	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}

	for _, group := range h.groups {
		handler = handler.WithGroup(group)
	}

	return handler.Handle(ctx, r)
}

// contextAttrs are always emitted at the top level, outside any group.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if traceID := TraceID(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if spanID := SpanID(ctx); spanID != "" {
		attrs = append(attrs, slog.String("span_id", spanID))
	}
	if session, ok := auth.FromContext(ctx); ok {
		attrs = append(attrs, slog.String("session_subject", session.Subject))
		if session.ShopID != "" {
			attrs = append(attrs, slog.String("session_shop_id", session.ShopID))
		}
	}
	return attrs
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{
		baseHandler: h.baseHandler,
		groups:      h.groups,
		attrs:       append(slices.Clip(h.attrs), attrs...),
	}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{
		baseHandler: h.baseHandler,
		groups:      append(slices.Clip(h.groups), name),
		attrs:       h.attrs,
	}
}

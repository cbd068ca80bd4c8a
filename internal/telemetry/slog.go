package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

const logScope = "countrysync"

// teeHandler writes every record to next and copies records that pass next's
// level to an otelslog handler.
type teeHandler struct {
	next slog.Handler
	otel slog.Handler
}

// NewSlogHandler wraps next so that records are also emitted through the
// global OTel logger provider. Without [Setup] the provider is a no-op and
// only next sees the records.
func NewSlogHandler(next slog.Handler) slog.Handler {
	return newSlogHandler(next, global.GetLoggerProvider())
}

func newSlogHandler(next slog.Handler, provider otellog.LoggerProvider) *teeHandler {
	return &teeHandler{
		next: next,
		otel: otelslog.NewHandler(logScope, otelslog.WithLoggerProvider(provider)),
	}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.otel.Enabled(ctx, r.Level) {
		// Export errors go to the OTel error handler.
		_ = h.otel.Handle(ctx, r.Clone())
	}
	return h.next.Handle(ctx, r)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{next: h.next.WithAttrs(attrs), otel: h.otel.WithAttrs(attrs)}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{next: h.next.WithGroup(name), otel: h.otel.WithGroup(name)}
}

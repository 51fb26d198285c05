package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns the attributes describing what the collector is
// doing right now, such as the running session, trip and tick.
type ContextProvider func() []slog.Attr

// ContextHandler appends the provider's attributes to every record. A key
// the caller already set, on the record or through With, is not repeated.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
	set      map[string]bool
}

// NewContextHandler wraps inner. A nil provider adds nothing.
func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.inner.Handle(ctx, r)
	}
	attrs := h.provider()
	if len(attrs) == 0 {
		return h.inner.Handle(ctx, r)
	}

	seen := make(map[string]bool, len(h.set)+r.NumAttrs())
	for k := range h.set {
		seen[k] = true
	}
	r.Attrs(func(a slog.Attr) bool {
		seen[a.Key] = true
		return true
	})
	for _, a := range attrs {
		if !seen[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	set := make(map[string]bool, len(h.set)+len(attrs))
	for k := range h.set {
		set[k] = true
	}
	for _, a := range attrs {
		set[a.Key] = true
	}
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider, set: set}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider, set: h.set}
}

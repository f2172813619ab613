package dashboard

import (
	"context"
	"fmt"
	"log/slog"
)

// hubHandler is a slog.Handler that mirrors every record into the websocket
// hub while delegating to the wrapped handler. Attribute values are rendered
// to strings; the dashboard only displays them.
type hubHandler struct {
	inner slog.Handler
	hub   *LogStreamHub
	attrs []slog.Attr
}

func newHubHandler(inner slog.Handler, hub *LogStreamHub) *hubHandler {
	return &hubHandler{inner: inner, hub: hub}
}

func (h *hubHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *hubHandler) Handle(ctx context.Context, rec slog.Record) error {
	attrs := make(map[string]string, rec.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = fmt.Sprint(a.Value.Any())
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = fmt.Sprint(a.Value.Any())
		return true
	})

	h.hub.Broadcast(LogStreamMessage{
		Type:       "log",
		Timestamp:  rec.Time.UnixMilli(),
		Level:      rec.Level.String(),
		Message:    rec.Message,
		Attributes: attrs,
	})

	return h.inner.Handle(ctx, rec)
}

func (h *hubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &hubHandler{inner: h.inner.WithAttrs(attrs), hub: h.hub, attrs: merged}
}

func (h *hubHandler) WithGroup(name string) slog.Handler {
	return &hubHandler{inner: h.inner.WithGroup(name), hub: h.hub, attrs: h.attrs}
}

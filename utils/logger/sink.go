// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package logger

import (
	"context"
	"log/slog"

	"github.com/Xorcist77/sqlsink/models/events"
)

// EventSink receives log events. Both delivery engines implement it.
type EventSink interface {
	Emit(ctx context.Context, event events.LogEvent) error
}

// EventHandler is a slog.Handler that converts records into log events and
// emits them to a sink. Attributes become event properties; groups are
// flattened into dotted property names.
type EventHandler struct {
	sink   EventSink
	level  slog.Leveler
	prefix string
	attrs  map[string]any
}

var _ slog.Handler = (*EventHandler)(nil)

// NewEventHandler returns a handler emitting records at or above level.
func NewEventHandler(sink EventSink, level slog.Leveler) *EventHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &EventHandler{sink: sink, level: level}
}

// Enabled implements slog.Handler.
func (h *EventHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *EventHandler) Handle(ctx context.Context, r slog.Record) error {
	event := events.LogEvent{
		Timestamp:       r.Time,
		Level:           events.FromSlog(r.Level),
		MessageTemplate: r.Message,
		Message:         r.Message,
	}
	props := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		props[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(props, h.prefix, a)
		return true
	})
	for _, key := range []string{"error", "exception"} {
		if err, ok := props[key].(error); ok {
			event.Exception = err.Error()
			delete(props, key)
			break
		}
	}
	if len(props) > 0 {
		event.Properties = props
	}
	return h.sink.Emit(ctx, event)
}

// WithAttrs implements slog.Handler.
func (h *EventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		flatten(next.attrs, h.prefix, a)
	}
	return next
}

// WithGroup implements slog.Handler.
func (h *EventHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.prefix = h.prefix + name + "."
	return next
}

func (h *EventHandler) clone() *EventHandler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &EventHandler{sink: h.sink, level: h.level, prefix: h.prefix, attrs: attrs}
}

func flatten(into map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			flatten(into, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	into[prefix+a.Key] = v.Any()
}

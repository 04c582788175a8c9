package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Fanout sends each record to every handler that accepts its level. The
// console handler goes first so a failing reporter never hides a log line.
type Fanout struct {
	handlers []slog.Handler
}

func NewFanout(handlers ...slog.Handler) slog.Handler {
	kept := make([]slog.Handler, 0, len(handlers))
	for _, handler := range handlers {
		if handler != nil {
			kept = append(kept, handler)
		}
	}
	switch len(kept) {
	case 0:
		return slog.NewTextHandler(io.Discard, nil)
	case 1:
		return kept[0]
	}
	return &Fanout{handlers: kept}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f.handlers {
		if handler.Enabled(ctx, record.Level) {
			// Handlers may retain the record, so each gets its own copy.
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *Fanout) derive(fn func(slog.Handler) slog.Handler) *Fanout {
	next := &Fanout{handlers: make([]slog.Handler, len(f.handlers))}
	for i, handler := range f.handlers {
		next.handlers[i] = fn(handler)
	}
	return next
}

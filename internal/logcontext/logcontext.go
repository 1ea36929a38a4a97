package logcontext

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

var slogFields ctxKey

// AppendCtx returns a context carrying attr in addition to any attrs already
// present; handlers that understand the key emit them with every record.
func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if v, ok := parent.Value(slogFields).([]slog.Attr); ok {
		v = append(v, attr)
		return context.WithValue(parent, slogFields, v)
	}

	return context.WithValue(parent, slogFields, []slog.Attr{attr})
}

// Attrs extracts the attrs previously appended with AppendCtx.
func Attrs(ctx context.Context) []slog.Attr {
	if v, ok := ctx.Value(slogFields).([]slog.Attr); ok {
		return v
	}
	return nil
}

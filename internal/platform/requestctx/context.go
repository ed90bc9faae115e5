// Package requestctx carries per-request logging and trace metadata on context.Context.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type valuesKey struct{}

// values is stored once per derived context; setters copy it so parent contexts never observe
// later changes.
type values struct {
	logger   *zap.Logger
	trace    TraceInfo
	hasTrace bool
}

var noopLogger = zap.NewNop()

// TraceInfo is the W3C trace context of the current request.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

func load(ctx context.Context) values {
	if ctx == nil {
		return values{}
	}
	v, _ := ctx.Value(valuesKey{}).(values)
	return v
}

func store(ctx context.Context, v values) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, valuesKey{}, v)
}

// WithLogger attaches logger to ctx. A nil logger stores the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	v := load(ctx)
	v.logger = logger
	return store(ctx, v)
}

// With returns a context whose logger carries the extra fields.
func With(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return WithLogger(ctx, Logger(ctx).With(fields...))
}

// Logger returns the request logger, or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if l := load(ctx).logger; l != nil {
		return l
	}
	return noopLogger
}

// NoopLogger is the logger returned when none was attached.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace attaches trace metadata to ctx.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	v := load(ctx)
	v.trace = info
	v.hasTrace = true
	return store(ctx, v)
}

// Trace returns the trace metadata of ctx.
func Trace(ctx context.Context) (TraceInfo, bool) {
	v := load(ctx)
	return v.trace, v.hasTrace
}

// TraceID is a shortcut for the trace identifier; empty when untraced.
func TraceID(ctx context.Context) string {
	return load(ctx).trace.TraceID
}

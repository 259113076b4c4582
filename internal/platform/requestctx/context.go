package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type contextKey struct{ name string }

var (
	loggerKey = contextKey{name: "logger"}
	traceKey  = contextKey{name: "trace"}
	clientKey = contextKey{name: "client"}
)

var noopLogger = zap.NewNop()

// TraceInfo captures Cloud Trace metadata propagated through the request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the request-scoped logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request-scoped logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared no-op logger so callers can detect a missing request logger.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores trace metadata.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

// Trace returns trace metadata when present.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID returns the trace identifier or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithClientKey stores the key requests are rate limited by (user id or remote address).
func WithClientKey(ctx context.Context, key string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientKey, key)
}

// ClientKey returns the rate limiting key or "".
func ClientKey(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	key, _ := ctx.Value(clientKey).(string)
	return key
}

var annotationsKey = contextKey{name: "annotations"}

// Annotations collects facts learned by inner middleware (caller uid, rate limit key, idempotency outcome)
// so the access log written by an outer middleware can report them.
type Annotations struct {
	mu     sync.Mutex
	values map[string]string
}

// WithAnnotations attaches an empty annotation set to ctx.
func WithAnnotations(ctx context.Context) (context.Context, *Annotations) {
	if ctx == nil {
		ctx = context.Background()
	}
	notes := &Annotations{values: make(map[string]string)}
	return context.WithValue(ctx, annotationsKey, notes), notes
}

// Annotate records key=value on the request's annotation set. It is a no-op when none is attached.
func Annotate(ctx context.Context, key, value string) {
	if ctx == nil || key == "" {
		return
	}
	notes, ok := ctx.Value(annotationsKey).(*Annotations)
	if !ok || notes == nil {
		return
	}
	notes.mu.Lock()
	notes.values[key] = value
	notes.mu.Unlock()
}

// Values returns a copy of the recorded annotations.
func (a *Annotations) Values() map[string]string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

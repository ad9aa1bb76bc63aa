package observe

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the foyer tracer.
const tracerName = "github.com/foyer-ai/foyer"

// userKey indexes the per-request user holder in a context.
type userKey struct{}

// userHolder is a mutable slot for the acting family-member id. The
// [Middleware] installs an empty holder before the handler runs; the handler
// fills it once the identity is known (request body, review caller, voice
// identification), which lets the completion log written *after* the handler
// still name the user.
type userHolder struct {
	mu sync.Mutex
	id string
}

// NewUserContext returns a context carrying an empty user slot. Installed by
// [Middleware]; exposed for tests that exercise handlers directly.
func NewUserContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, userKey{}, &userHolder{})
}

// WithUser records the family-member id a request acts for. When the context
// carries a [Middleware]-installed slot the id is set in place (so it is
// visible to the middleware's completion log); otherwise a fresh value
// context is returned.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	if h, ok := ctx.Value(userKey{}).(*userHolder); ok {
		h.mu.Lock()
		h.id = userID
		h.mu.Unlock()
		return ctx
	}
	h := &userHolder{id: userID}
	return context.WithValue(ctx, userKey{}, h)
}

// UserID returns the family-member id recorded by [WithUser], or "".
func UserID(ctx context.Context) string {
	if h, ok := ctx.Value(userKey{}).(*userHolder); ok {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.id
	}
	return ""
}

// Tracer returns the package-level [trace.Tracer]. It uses the globally
// registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// A request that arrived with a traceparent header keeps the caller's trace
// id. The learning pipeline runs a correction's gate chats on a fresh context
// and sends no trace headers, so those chats carry trace ids of their own.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context, plus user_id when [WithUser] was applied upstream.
// When neither is present, the returned logger is the default slog logger
// without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if uid := UserID(ctx); uid != "" {
		l = l.With(slog.String("user_id", uid))
	}
	return l
}

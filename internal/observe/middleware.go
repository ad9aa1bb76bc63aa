package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// scrapePaths are polled continuously by infrastructure (Prometheus, the
// other sidecars' health probes). They complete at debug level and stay out
// of the request-duration histogram so a 15-second scrape interval does not
// drown the real voice/chat/learning traffic.
var scrapePaths = map[string]bool{
	"/metrics": true,
	"/health":  true,
}

// statusRecorder wraps [http.ResponseWriter] to capture the status code
// written by the downstream handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and delegates to the wrapped writer.
func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware returns an [http.Handler] wrapper for one sidecar. service is
// the sidecar name ("voiced", "llmd", "learnd"); it labels the span, the
// duration metric, and the completion log so the three services can share
// one dashboard.
//
// The wrapper extracts W3C trace context from the incoming request (a caller
// that sends a traceparent header has its trace continued), starts a server
// span, reflects the trace id back as
// X-Correlation-ID, records the request duration, and logs completion with
// the acting user when a handler attached one via [WithUser].
func Middleware(service string, m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx = NewUserContext(ctx)

			ctx, span := StartSpan(ctx, service+" "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("foyer.service", service),
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			r = r.WithContext(ctx)
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))

			scrape := scrapePaths[r.URL.Path]
			if !scrape {
				m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
					metric.WithAttributes(
						attribute.String("service", service),
						attribute.String("method", r.Method),
						attribute.String("path", r.URL.Path),
						attribute.String("status", strconv.Itoa(rec.statusCode)),
					),
				)
			}

			level := slog.LevelInfo
			if scrape {
				level = slog.LevelDebug
			}
			attrs := []slog.Attr{
				slog.String("service", service),
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", duration),
			}
			if uid := UserID(ctx); uid != "" {
				attrs = append(attrs, slog.String("user_id", uid))
			}
			slog.LogAttrs(ctx, level, "request completed", attrs...)
		})
	}
}

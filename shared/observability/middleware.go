package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

const (
	requestIDKey ctxKey = "shared.observability.request_id"
	startTimeKey ctxKey = "shared.observability.start_time"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestIDFromContext returns the request ID if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// WithRequestID stores id in ctx. Used by background jobs and tests.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// Elapsed returns the time since RequestContextMiddleware saw the request.
func Elapsed(ctx context.Context) (time.Duration, bool) {
	start, ok := ctx.Value(startTimeKey).(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

// RequestContextMiddleware assigns a request ID (reusing an inbound
// X-Request-ID) and records the start time.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := WithRequestID(r.Context(), requestID)
		ctx = context.WithValue(ctx, startTimeKey, time.Now())

		r = r.WithContext(ctx)
		r.Header.Set(RequestIDHeader, requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r)
	})
}

// TracingMiddleware starts a server span per request, continuing any trace
// propagated in the inbound headers.
func TracingMiddleware(serviceName string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(serviceName + "/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				),
			)
			defer span.End()
			if id, ok := RequestIDFromContext(ctx); ok {
				span.SetAttributes(attribute.String("request.id", id))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

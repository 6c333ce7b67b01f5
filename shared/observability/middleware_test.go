package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestRequestContextMiddleware(t *testing.T) {
	var seen string
	handler := RequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := RequestIDFromContext(r.Context())
		require.True(t, ok)
		seen = id
		_, ok = Elapsed(r.Context())
		assert.True(t, ok)
		assert.Equal(t, id, r.Header.Get(RequestIDHeader))
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "inbound-1")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "inbound-1", seen)
	assert.Equal(t, "inbound-1", rr.Header().Get(RequestIDHeader))
}

func TestRequestIDMissing(t *testing.T) {
	_, ok := RequestIDFromContext(context.Background())
	assert.False(t, ok)
	_, ok = Elapsed(context.Background())
	assert.False(t, ok)

	id, ok := RequestIDFromContext(WithRequestID(context.Background(), "job-1"))
	assert.True(t, ok)
	assert.Equal(t, "job-1", id)
}

func TestTracingMiddlewareRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	var inner trace.SpanContext
	handler := RequestContextMiddleware(TracingMiddleware("agency-service")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/claims", nil))

	require.True(t, inner.IsValid())
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/claims", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
}

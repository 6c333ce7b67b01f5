// Package errors defines the JSON error envelope returned by every HTTP
// endpoint and the mapping from envelope codes to HTTP status codes.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/otherjamesbrown/agency-service/shared/observability"
)

// Envelope codes.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeValidation   = "VALIDATION"
	CodeForbidden    = "FORBIDDEN"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL"

	// CodeMethodNotAllowed is used by the router for a known path with the wrong method.
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// Actor contains authenticated subject metadata used in error payloads.
type Actor struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
}

// Error is the error envelope.
type Error struct {
	Message   string    `json:"error"`
	Code      string    `json:"code"`
	Detail    string    `json:"detail,omitempty"`
	Field     string    `json:"field,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Actor     *Actor    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Option mutates an Error during construction.
type Option func(*Error)

// New constructs an Error with the provided code and message.
func New(code, message string, opts ...Option) *Error {
	err := &Error{
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(err)
	}
	return err
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Status maps the envelope code to an HTTP status.
func (e *Error) Status() int {
	return StatusFor(e.Code)
}

// WithDetail attaches a detail string.
func WithDetail(detail string) Option {
	return func(e *Error) {
		e.Detail = detail
	}
}

// WithField names the request field a validation error refers to.
func WithField(field string) Option {
	return func(e *Error) {
		e.Field = field
	}
}

// WithRequestID attaches a request ID.
func WithRequestID(id string) Option {
	return func(e *Error) {
		e.RequestID = id
	}
}

// WithTraceID attaches a trace ID.
func WithTraceID(id string) Option {
	return func(e *Error) {
		e.TraceID = id
	}
}

// WithActor attaches actor metadata.
func WithActor(actor *Actor) Option {
	return func(e *Error) {
		e.Actor = actor
	}
}

// WithTimestamp overrides the default timestamp.
func WithTimestamp(ts time.Time) Option {
	return func(e *Error) {
		e.Timestamp = ts.UTC()
	}
}

// StatusFor returns the HTTP status for an envelope code. Unknown codes are 500.
func StatusFor(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// From coerces any error into an Error. Foreign errors become INTERNAL with
// a generic message so internals never reach the client.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if shared, ok := err.(*Error); ok {
		return shared
	}
	return New(CodeInternal, "unexpected error occurred")
}

// Marshal converts an error into the JSON envelope.
func Marshal(err error) ([]byte, error) {
	return json.Marshal(From(err))
}

// Write renders err as the envelope, filling request and trace ids from the
// request context when they are not already set.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	e := From(err)
	if r != nil {
		ctx := r.Context()
		if e.RequestID == "" {
			if id, ok := observability.RequestIDFromContext(ctx); ok {
				e.RequestID = id
			}
		}
		if e.TraceID == "" {
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				e.TraceID = sc.TraceID().String()
			}
		}
	}
	if e.Code == CodeUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="agency"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status())
	_ = json.NewEncoder(w).Encode(e)
}

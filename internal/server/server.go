// Package server builds the HTTP server: CORS, request correlation, tracing,
// access logging, health endpoints and Prometheus metrics around the API
// routes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/shared/dataaccess"
	sharederrors "github.com/otherjamesbrown/agency-service/shared/errors"
	"github.com/otherjamesbrown/agency-service/shared/logging"
	"github.com/otherjamesbrown/agency-service/shared/observability"
)

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-Request-ID"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Options configure the HTTP server instance.
type Options struct {
	Port        int
	Logger      *zap.Logger
	ServiceName string
	// AllowedOrigins lists CORS origins. Empty allows localhost origins only.
	AllowedOrigins []string
	// Health backs /readyz. Nil reports ready.
	Health *dataaccess.Registry
	// DebugRoutes exposes /debug/routes.
	DebugRoutes    bool
	RegisterRoutes func(chi.Router)
}

// originPolicy decides which Origin values get CORS headers.
type originPolicy []string

func (p originPolicy) allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if len(p) == 0 {
		return strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "https://localhost:")
	}
	for _, o := range p {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (p originPolicy) addHeaders(w http.ResponseWriter, r *http.Request, preflight bool) {
	origin := r.Header.Get("Origin")
	if !p.allowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Add("Vary", "Origin")
	if preflight {
		w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
		w.Header().Set("Access-Control-Max-Age", "3600")
	}
}

// New constructs an http.Server pre-configured with health and readiness routes.
func New(opts Options) *http.Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "agency-service"
	}
	cors := originPolicy(opts.AllowedOrigins)

	router := chi.NewRouter()

	// CORS must be first to answer OPTIONS before route matching.
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				cors.addHeaders(w, r, true)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			cors.addHeaders(w, r, false)
			next.ServeHTTP(w, r)
		})
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sharederrors.Write(w, r, sharederrors.New(sharederrors.CodeMethodNotAllowed, "method not allowed",
			sharederrors.WithDetail(r.Method+" "+r.URL.Path)))
	})
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(opts.Logger, r.Context()).Debug("route not found",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		sharederrors.Write(w, r, sharederrors.New(sharederrors.CodeNotFound, "route not found",
			sharederrors.WithDetail(r.Method+" "+r.URL.Path)))
	})

	router.Use(middleware.RealIP)
	router.Use(observability.RequestContextMiddleware)
	router.Use(observability.TracingMiddleware(opts.ServiceName))
	router.Use(recoverer(opts.Logger))
	router.Use(accessLog(opts.Logger))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	health := opts.Health
	if health == nil {
		health = dataaccess.NewRegistry()
	}
	router.Get("/readyz", dataaccess.Handler(health))

	router.Get("/metrics", promhttp.Handler().ServeHTTP)

	if opts.DebugRoutes {
		router.Get("/debug/routes", func(w http.ResponseWriter, r *http.Request) {
			routes := []map[string]string{}
			walkFunc := func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
				routes = append(routes, map[string]string{"method": method, "route": route})
				return nil
			}
			if err := chi.Walk(router, walkFunc); err != nil {
				sharederrors.Write(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]any{"routes": routes, "count": len(routes)})
		})
	}

	if opts.RegisterRoutes != nil {
		opts.RegisterRoutes(router)
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// accessLog logs one line per request. Query strings are redacted because
// reset tokens travel there.
func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, zap.String("query", logging.RedactString(r.URL.RawQuery)))
			}
			if ua := r.Header.Get("User-Agent"); ua != "" {
				fields = append(fields, zap.String("user_agent", ua))
			}
			if user, _, ok := r.BasicAuth(); ok {
				fields = append(fields, zap.String("username", user))
			}
			log := logging.FromContext(logger, r.Context())
			if ww.statusCode >= http.StatusInternalServerError {
				log.Warn("request completed", fields...)
				return
			}
			log.Info("request completed", fields...)
		})
	}
}

// recoverer turns a handler panic into a logged INTERNAL envelope.
func recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logging.FromContext(logger, r.Context()).Error("handler panic",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					sharederrors.Write(w, r, fmt.Errorf("panic: %v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Shutdown drains srv within timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

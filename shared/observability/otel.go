// Package observability wires OpenTelemetry tracing and request correlation
// for HTTP services.
//
// Init installs a global tracer provider exporting over OTLP. gRPC is tried
// first with HTTP as a fallback; when neither exporter can be built the
// provider degrades to a no-op so the service still starts. Each failure is
// counted in agency_service_telemetry_export_failures_total.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"

	"github.com/otherjamesbrown/agency-service/internal/metrics"
)

// ErrEndpointRequired is returned by Init when no collector endpoint is set.
var ErrEndpointRequired = errors.New("telemetry endpoint required")

// Config controls the OpenTelemetry initialization.
type Config struct {
	ServiceName string
	Environment string
	Endpoint    string
	Protocol    string // grpc or http
	Headers     map[string]string
	Insecure    bool
	// SampleRatio is the fraction of root spans kept. Zero means keep all.
	SampleRatio float64
}

// Provider wraps the tracer provider and exposes Shutdown.
type Provider struct {
	tp       *sdktrace.TracerProvider
	protocol string
	fallback bool
}

// Shutdown flushes telemetry exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Fallback reports whether the provider is operating in a degraded mode.
func (p *Provider) Fallback() bool {
	if p == nil {
		return false
	}
	return p.fallback
}

// Protocol returns the exporter protocol in use, empty when degraded.
func (p *Provider) Protocol() string {
	if p == nil {
		return ""
	}
	return p.protocol
}

// Init configures OpenTelemetry exporters and global providers.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "grpc"
	}

	provider, err := initWithConfig(ctx, cfg)
	if err == nil {
		return provider, nil
	}

	metrics.RecordTelemetryExportFailure(cfg.ServiceName, cfg.Protocol)
	otel.Handle(fmt.Errorf("telemetry init failed for %s exporter: %w", cfg.Protocol, err))

	if cfg.Protocol == "grpc" {
		httpCfg := cfg
		httpCfg.Protocol = "http"
		httpProvider, httpErr := initWithConfig(ctx, httpCfg)
		if httpErr == nil {
			return httpProvider, nil
		}
		metrics.RecordTelemetryExportFailure(cfg.ServiceName, "http")
		otel.Handle(fmt.Errorf("telemetry http fallback failed: %w", httpErr))
	}

	return degradedProvider(cfg.ServiceName), nil
}

// MustInit panics if Init returns an error.
func MustInit(ctx context.Context, cfg Config) *Provider {
	provider, err := Init(ctx, cfg)
	if err != nil {
		panic(err)
	}
	return provider
}

func initWithConfig(ctx context.Context, cfg Config) (*Provider, error) {
	client, err := buildClient(cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(tp)
	setPropagator()

	return &Provider{tp: tp, protocol: cfg.Protocol}, nil
}

func setPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

func degradedProvider(serviceName string) *Provider {
	metrics.RecordTelemetryExportFailure(serviceName, "degraded")
	otel.SetTracerProvider(noop.NewTracerProvider())
	setPropagator()
	return &Provider{fallback: true}
}

func buildClient(cfg Config) (otlptrace.Client, error) {
	switch cfg.Protocol {
	case "http":
		options := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
				Enabled:         true,
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     5 * time.Second,
				MaxElapsedTime:  30 * time.Second,
			}),
		}
		if len(cfg.Headers) > 0 {
			options = append(options, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if cfg.Insecure {
			options = append(options, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.NewClient(options...), nil
	case "grpc":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
				Enabled:         true,
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     5 * time.Second,
				MaxElapsedTime:  30 * time.Second,
			}),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(cfg.ServiceName)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.NewClient(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", cfg.Protocol)
	}
}

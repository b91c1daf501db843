// Package observability configures OpenTelemetry tracing and metrics for the service.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/logger"
)

// ErrInvalidExporter is returned for an unknown exporter name.
var ErrInvalidExporter = errors.New("invalid trace exporter")

// Provider manages the lifecycle of the tracer and meter providers.
type Provider interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
	// Shutdown flushes pending spans and metrics and stops exporting.
	Shutdown(ctx context.Context) error
	ForceFlush(ctx context.Context) error
}

type provider struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

type noopProvider struct{}

func (noopProvider) TracerProvider() trace.TracerProvider { return noop.NewTracerProvider() }
func (noopProvider) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }
func (noopProvider) Shutdown(context.Context) error       { return nil }
func (noopProvider) ForceFlush(context.Context) error     { return nil }

// NewProvider builds tracer and meter providers from cfg and installs them,
// together with the W3C trace context propagator, as the otel globals.
// Disabled observability yields a no-op provider.
func NewProvider(ctx context.Context, cfg *config.ObservabilityConfig, app *config.AppConfig, log logger.Logger) (Provider, error) {
	return newProvider(ctx, cfg, app, log, os.Stdout)
}

func newProvider(ctx context.Context, cfg *config.ObservabilityConfig, app *config.AppConfig, log logger.Logger, stdout io.Writer) (Provider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		log.Debug().Msg("Tracing and metrics disabled")
		return noopProvider{}, nil
	}

	exporter, err := newExporter(ctx, cfg, stdout)
	if err != nil {
		return nil, err
	}
	metricExporter, err := newMetricExporter(ctx, cfg, stdout)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(app.Name),
		semconv.ServiceVersion(app.Version),
		semconv.DeploymentEnvironmentName(app.Env),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)

	mp := newMeterProvider(res, metricExporter, cfg.MetricInterval)
	otel.SetMeterProvider(mp)

	log.Info().
		Str("exporter", cfg.Exporter).
		Str("endpoint", cfg.Endpoint).
		Dur("metric_interval", metricInterval(cfg.MetricInterval)).
		Msg("Tracing and metrics enabled")

	return &provider{tp: tp, mp: mp}, nil
}

func newExporter(ctx context.Context, cfg *config.ObservabilityConfig, stdout io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case config.ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(stdout))
	case config.ExporterOTLP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidExporter, cfg.Exporter)
	}
}

func (p *provider) TracerProvider() trace.TracerProvider {
	return p.tp
}

func (p *provider) MeterProvider() metric.MeterProvider {
	return p.mp
}

func (p *provider) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.tp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown trace provider: %w", err))
	}
	if err := p.mp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
	}
	return errors.Join(errs...)
}

func (p *provider) ForceFlush(ctx context.Context) error {
	if err := p.tp.ForceFlush(ctx); err != nil {
		return fmt.Errorf("failed to flush trace provider: %w", err)
	}
	if err := p.mp.ForceFlush(ctx); err != nil {
		return fmt.Errorf("failed to flush meter provider: %w", err)
	}
	return nil
}

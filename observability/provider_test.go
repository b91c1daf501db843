package observability

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/logger"
)

var testApp = &config.AppConfig{Name: "practice-api", Version: "v0.0.1", Env: config.EnvDevelopment}

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), &config.ObservabilityConfig{}, testApp, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, noopProvider{}, p)
	assert.NotNil(t, p.MeterProvider())
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(context.Background(), carrier)
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestNewProviderStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.ObservabilityConfig{Enabled: true, Exporter: config.ExporterStdout, SampleRate: 1}

	p, err := newProvider(context.Background(), cfg, testApp, logger.Nop(), &buf)
	require.NoError(t, err)

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "GET /api/patients")
	span.End()

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Contains(t, buf.String(), "GET /api/patients")
	assert.Contains(t, buf.String(), "practice-api")
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderStdoutExportsMetrics(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.ObservabilityConfig{Enabled: true, Exporter: config.ExporterStdout, SampleRate: 1, MetricInterval: time.Hour}

	p, err := newProvider(context.Background(), cfg, testApp, logger.Nop(), &buf)
	require.NoError(t, err)
	assert.Same(t, p.MeterProvider(), otel.GetMeterProvider())

	counter, err := p.MeterProvider().Meter("test").Int64Counter("practice.test.calls")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Contains(t, buf.String(), "practice.test.calls")
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestMetricIntervalDefault(t *testing.T) {
	assert.Equal(t, DefaultMetricInterval, metricInterval(0))
	assert.Equal(t, time.Minute, metricInterval(time.Minute))
}

func TestNewProviderOTLP(t *testing.T) {
	cfg := &config.ObservabilityConfig{Enabled: true, Exporter: config.ExporterOTLP, Endpoint: "localhost:4318", Insecure: true, SampleRate: 0.5}

	p, err := NewProvider(context.Background(), cfg, testApp, logger.Nop())
	require.NoError(t, err)
	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.MeterProvider())

	// Nothing listens on the endpoint, so the final metric export may fail.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestNewProviderInvalidExporter(t *testing.T) {
	cfg := &config.ObservabilityConfig{Enabled: true, Exporter: "zipkin"}
	_, err := NewProvider(context.Background(), cfg, testApp, logger.Nop())
	assert.ErrorIs(t, err, ErrInvalidExporter)
}

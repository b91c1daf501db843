package observability

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/nephrolytics/practice-api/config"
)

// DefaultMetricInterval applies when the configured interval is zero.
const DefaultMetricInterval = 30 * time.Second

func metricInterval(configured time.Duration) time.Duration {
	if configured <= 0 {
		return DefaultMetricInterval
	}
	return configured
}

// newMeterProvider exports through a periodic reader. Shutdown of the
// provider flushes the last interval.
func newMeterProvider(res *resource.Resource, exporter sdkmetric.Exporter, interval time.Duration) *sdkmetric.MeterProvider {
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricInterval(interval)))
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
}

// newMetricExporter mirrors newExporter: metrics leave through the same
// exporter kind and endpoint as spans.
func newMetricExporter(ctx context.Context, cfg *config.ObservabilityConfig, stdout io.Writer) (sdkmetric.Exporter, error) {
	switch cfg.Exporter {
	case config.ExporterStdout:
		return stdoutmetric.New(stdoutmetric.WithWriter(stdout))
	case config.ExporterOTLP:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidExporter, cfg.Exporter)
	}
}

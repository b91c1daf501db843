package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	httpMeterName = "practice-api/http-server"

	// OpenTelemetry HTTP server semantic conventions.
	metricHTTPRequestDuration = "http.server.request.duration"
	metricHTTPActiveRequests  = "http.server.active_requests"

	attrHTTPRequestMethod  = "http.request.method"
	attrHTTPResponseStatus = "http.response.status_code"
	attrHTTPRoute          = "http.route"
	attrURLScheme          = "url.scheme"
	attrErrorType          = "error.type"
	attrTenantID           = "tenant.id"
)

// Recommended HTTP latency bucket boundaries, in seconds.
var httpDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
}

type httpMetrics struct {
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

func newHTTPMetrics(mp metric.MeterProvider) (*httpMetrics, error) {
	meter := mp.Meter(httpMeterName)

	duration, err := meter.Float64Histogram(
		metricHTTPRequestDuration,
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(httpDurationBuckets...),
	)
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter(
		metricHTTPActiveRequests,
		metric.WithDescription("Number of active HTTP server requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return &httpMetrics{duration: duration, active: active}, nil
}

// HTTPMetrics records request duration and in-flight requests. Registered
// ahead of LoggerWithConfig, it sees the status the error handler rendered and
// the tenant that TenantScope resolved, which is added as tenant.id.
func HTTPMetrics(mp metric.MeterProvider) (echo.MiddlewareFunc, error) {
	m, err := newHTTPMetrics(mp)
	if err != nil {
		return nil, err
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return m.handle(c, next)
		}
	}, nil
}

func (m *httpMetrics) handle(c echo.Context, next echo.HandlerFunc) error {
	req := c.Request()
	ctx := req.Context()
	base := []attribute.KeyValue{
		attribute.String(attrHTTPRequestMethod, req.Method),
		attribute.String(attrURLScheme, scheme(c)),
	}

	m.active.Add(ctx, 1, metric.WithAttributes(base...))
	start := time.Now()
	err := next(c)
	elapsed := time.Since(start)
	m.active.Add(ctx, -1, metric.WithAttributes(base...))

	status := c.Response().Status
	if err != nil && !c.Response().Committed {
		status = errorStatus(err)
	}
	attrs := append(base,
		attribute.Int(attrHTTPResponseStatus, status),
		attribute.String(attrHTTPRoute, routeOf(c)),
	)
	if errorType := classifyHTTPError(status, err); errorType != "" {
		attrs = append(attrs, attribute.String(attrErrorType, errorType))
	}
	if rl := requestLogFrom(c); rl != nil {
		if _, tenantID := rl.ids(); tenantID != 0 {
			attrs = append(attrs, attribute.Int64(attrTenantID, tenantID))
		}
	}
	m.duration.Record(context.WithoutCancel(ctx), elapsed.Seconds(), metric.WithAttributes(attrs...))
	return err
}

// errorStatus is the status echo's error handler will send for err.
func errorStatus(err error) int {
	var apiErr IAPIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus()
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func routeOf(c echo.Context) string {
	if path := c.Path(); path != "" {
		return path
	}
	return "unknown"
}

// scheme prefers X-Forwarded-Proto from a fronting proxy.
func scheme(c echo.Context) string {
	if proto := c.Request().Header.Get(echo.HeaderXForwardedProto); proto != "" {
		return proto
	}
	if c.Request().TLS != nil {
		return "https"
	}
	return "http"
}

func classifyHTTPError(status int, err error) string {
	if status >= 400 {
		return strconv.Itoa(status)
	}
	if err != nil {
		return "handler_error"
	}
	return ""
}

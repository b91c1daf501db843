package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nephrolytics/practice-api/auth"
	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/multitenant"
)

func newMeteredServer(t *testing.T, handler echo.HandlerFunc) (*Server, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	srv, err := New(testConfig(), logger.Nop(), nil, mp)
	require.NoError(t, err)

	principals := principalStore{1: {ID: 1}, 3: {ID: 3}}
	memberships := membershipStore{byPrincipal: map[int64][]multitenant.Tenant{1: {clinicB}}}
	api := srv.API(
		Authenticate(auth.NewHeaderAuthenticator(testUserHeader, principals), logger.Nop()),
		TenantScope(multitenant.NewResolver(memberships, logger.Nop()), logger.Nop()),
	)
	api.GET("/probe", handler)
	return srv, reader
}

// durationPoints returns the request duration data points keyed by status code.
func durationPoints(t *testing.T, reader *sdkmetric.ManualReader) map[int64]metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	points := map[int64]metricdata.HistogramDataPoint[float64]{}
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != httpMeterName {
			continue
		}
		for _, m := range sm.Metrics {
			if m.Name != metricHTTPRequestDuration {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok, "expected histogram data")
			for _, dp := range hist.DataPoints {
				status, _ := dp.Attributes.Value(attribute.Key(attrHTTPResponseStatus))
				points[status.AsInt64()] = dp
			}
		}
	}
	return points
}

func TestHTTPMetricsTagTenantAndRoute(t *testing.T) {
	srv, reader := newMeteredServer(t, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"ok": "yes"})
	})

	rec := get(srv, 1)
	require.Equal(t, http.StatusOK, rec.Code)

	points := durationPoints(t, reader)
	dp, ok := points[http.StatusOK]
	require.True(t, ok, "expected a 200 data point")
	assert.Equal(t, uint64(1), dp.Count)

	route, _ := dp.Attributes.Value(attribute.Key(attrHTTPRoute))
	assert.Equal(t, "/api/probe", route.AsString())
	method, _ := dp.Attributes.Value(attribute.Key(attrHTTPRequestMethod))
	assert.Equal(t, http.MethodGet, method.AsString())
	tenant, ok := dp.Attributes.Value(attribute.Key(attrTenantID))
	require.True(t, ok)
	assert.Equal(t, clinicB.ID, tenant.AsInt64())
	_, hasError := dp.Attributes.Value(attribute.Key(attrErrorType))
	assert.False(t, hasError)
}

func TestHTTPMetricsRecordRenderedErrorStatus(t *testing.T) {
	srv, reader := newMeteredServer(t, func(echo.Context) error {
		return NewNotFoundError("patient")
	})

	require.Equal(t, http.StatusNotFound, get(srv, 1).Code)
	// User 3 has no membership and is rejected before the handler.
	require.Equal(t, http.StatusForbidden, get(srv, 3).Code)

	points := durationPoints(t, reader)

	notFound, ok := points[http.StatusNotFound]
	require.True(t, ok)
	errorType, _ := notFound.Attributes.Value(attribute.Key(attrErrorType))
	assert.Equal(t, "404", errorType.AsString())

	forbidden, ok := points[http.StatusForbidden]
	require.True(t, ok)
	_, tagged := forbidden.Attributes.Value(attribute.Key(attrTenantID))
	assert.False(t, tagged, "rejected requests carry no tenant")
}

func TestClassifyHTTPError(t *testing.T) {
	assert.Empty(t, classifyHTTPError(http.StatusOK, nil))
	assert.Equal(t, "handler_error", classifyHTTPError(http.StatusOK, assert.AnError))
	assert.Equal(t, "503", classifyHTTPError(http.StatusServiceUnavailable, nil))
	assert.Equal(t, http.StatusConflict, errorStatus(NewConflictError("taken")))
	assert.Equal(t, http.StatusMethodNotAllowed, errorStatus(echo.ErrMethodNotAllowed))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(assert.AnError))
}

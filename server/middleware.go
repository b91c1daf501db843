package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/logger"
)

// SlowRequestThreshold marks requests slower than this in the request log.
const SlowRequestThreshold = time.Second

// SetupMiddlewares registers the global middleware chain. Authentication and
// tenant scoping are added per route group by the application. A nil tp or
// mp skips server spans or request metrics.
func SetupMiddlewares(e *echo.Echo, log logger.Logger, cfg *config.Config, tp trace.TracerProvider, mp metric.MeterProvider) error {
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))

	if tp != nil {
		e.Use(otelecho.Middleware(cfg.App.Name, otelecho.WithTracerProvider(tp)))
	}

	if mp != nil {
		metrics, err := HTTPMetrics(mp)
		if err != nil {
			return fmt.Errorf("failed to initialize HTTP metrics: %w", err)
		}
		e.Use(metrics)
	}

	e.Use(LoggerWithConfig(log, LoggerConfig{
		HealthPath:           cfg.Server.Path.Health,
		ReadyPath:            cfg.Server.Path.Ready,
		SlowRequestThreshold: SlowRequestThreshold,
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.WithContext(c.Request().Context()).Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("stack", string(stack)).
				Msg("Panic recovered")
			return err
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            3600,
		ContentSecurityPolicy: "default-src 'none'",
	}))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, cfg.Auth.Header},
	}))

	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}
	return nil
}

// Package server provides the HTTP layer: echo setup, the standard response
// envelope, typed handlers, and the authentication and tenant scoping middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/logger"
)

// readyCheckTimeout bounds each readiness check.
const readyCheckTimeout = 3 * time.Second

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server represents an HTTP server instance with Echo framework.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config
	logger     logger.Logger

	mu     sync.RWMutex
	checks map[string]ReadinessCheck
}

// New creates the HTTP server with global middleware, the error handler and
// health endpoints. tp and mp may be nil to skip server spans and request
// metrics.
func New(cfg *config.Config, log logger.Logger, tp trace.TracerProvider, mp metric.MeterProvider) (*Server, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize request validator: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = v
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		customErrorHandler(err, c, cfg, log)
	}

	if err := SetupMiddlewares(e, log, cfg, tp, mp); err != nil {
		return nil, err
	}

	s := &Server{
		echo:       e,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      e,
			ReadTimeout:  cfg.Server.Timeout.Read,
			WriteTimeout: cfg.Server.Timeout.Write,
			IdleTimeout:  cfg.Server.Timeout.Idle,
		},
		cfg:        cfg,
		logger:     log,
		checks:     make(map[string]ReadinessCheck),
	}

	healthPath := normalizeRoutePath(cfg.Server.Path.Health, "/health")
	readyPath := normalizeRoutePath(cfg.Server.Path.Ready, "/ready")
	e.GET(healthPath, s.healthCheck)
	e.GET(readyPath, s.readyCheck)

	log.Debug().
		Str("base_path", s.BasePath()).
		Str("health_path", healthPath).
		Str("ready_path", readyPath).
		Msg("Server paths configured")

	return s, nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// BasePath returns the normalized API prefix.
func (s *Server) BasePath() string {
	return normalizeBasePath(s.cfg.Server.Path.Base)
}

// API returns a route group under the base path with middleware applied.
func (s *Server) API(middleware ...echo.MiddlewareFunc) *echo.Group {
	return s.echo.Group(s.BasePath(), middleware...)
}

// AddReadinessCheck registers a check consulted by the ready endpoint.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Start serves HTTP until Shutdown is called. It returns nil after a graceful
// shutdown, including one requested before Start.
func (s *Server) Start() error {
	s.logger.Info().
		Str("service", s.cfg.App.Name).
		Str("version", s.cfg.App.Version).
		Str("env", s.cfg.App.Env).
		Str("address", s.httpServer.Addr).
		Msg("Starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) readyCheck(c echo.Context) error {
	s.mu.RLock()
	checks := make(map[string]ReadinessCheck, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.RUnlock()

	status := http.StatusOK
	results := make(map[string]string, len(checks))
	for name, check := range checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), readyCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	return c.JSON(status, map[string]any{
		"status": state,
		"checks": results,
		"time":   time.Now().Unix(),
	})
}

func customErrorHandler(err error, c echo.Context, cfg *config.Config, log logger.Logger) {
	if c.Response().Committed {
		return
	}

	var apiErr IAPIError
	if errors.As(err, &apiErr) {
		_ = formatErrorResponse(c, apiErr, cfg)
		return
	}

	status := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		log.WithContext(c.Request().Context()).Error().Err(err).Msg("Unhandled error")
		if !cfg.App.Debug {
			msg = "An error occurred while processing your request"
		}
	}

	base := NewBaseAPIError(statusToErrorCode(status), msg, status)
	if cfg.IsDevelopment() {
		_ = base.WithDetails("error", err.Error())
	}
	_ = formatErrorResponse(c, base, cfg)
}

func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// normalizeBasePath returns "" for the root, otherwise a path with a leading
// and no trailing slash.
func normalizeBasePath(basePath string) string {
	if basePath == "" || basePath == "/" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimRight(basePath, "/")
}

func normalizeRoutePath(route, defaultRoute string) string {
	if route == "" {
		route = defaultRoute
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

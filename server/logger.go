package server

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nephrolytics/practice-api/logger"
)

// requestLogContextKey stores the per-request summary collected by LoggerWithConfig.
const requestLogContextKey = "request_log"

// LoggerConfig configures the request logging middleware.
type LoggerConfig struct {
	// HealthPath and ReadyPath are probe endpoints excluded from logging.
	HealthPath string
	ReadyPath  string
	// SlowRequestThreshold marks successful requests above it with result_code WARN.
	SlowRequestThreshold time.Duration
}

// requestLog collects identifiers that inner middleware learns during a request.
// Tenant scope is released before the summary is written, so ids are copied here.
type requestLog struct {
	mu          sync.Mutex
	start       time.Time
	principalID int64
	tenantID    int64
}

func (r *requestLog) setPrincipal(id int64) {
	r.mu.Lock()
	r.principalID = id
	r.mu.Unlock()
}

func (r *requestLog) setTenant(id int64) {
	r.mu.Lock()
	r.tenantID = id
	r.mu.Unlock()
}

func (r *requestLog) ids() (principalID, tenantID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.principalID, r.tenantID
}

func requestLogFrom(c echo.Context) *requestLog {
	rl, _ := c.Get(requestLogContextKey).(*requestLog)
	return rl
}

// LoggerWithConfig emits one summary line per request. Errors are rendered
// through the echo error handler first so the logged status is the one sent.
func LoggerWithConfig(log logger.Logger, cfg LoggerConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			if path == cfg.HealthPath || path == cfg.ReadyPath {
				return next(c)
			}

			rl := &requestLog{start: time.Now()}
			c.Set(requestLogContextKey, rl)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			latency := time.Since(rl.start)
			status := c.Response().Status
			level, resultCode := determineSeverity(status, latency, cfg.SlowRequestThreshold)

			event := createLogEvent(log.WithContext(c.Request().Context()), level)
			if err != nil {
				event = event.Err(err)
			}
			principalID, tenantID := rl.ids()
			if principalID != 0 {
				event = event.Int64("principal_id", principalID)
			}
			if tenantID != 0 {
				event = event.Int64("tenant_id", tenantID)
			}

			method := c.Request().Method
			event.
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("trace_id", getTraceID(c)).
				Str("method", method).
				Str("path", c.Request().URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Dur("latency", latency).
				Str("client_ip", c.RealIP()).
				Str("result_code", resultCode).
				Msg(method + " " + c.Request().URL.Path + " " + strconv.Itoa(status))

			return nil
		}
	}
}

// determineSeverity maps status and latency to a log level and result code.
func determineSeverity(status int, latency, threshold time.Duration) (level, resultCode string) {
	switch {
	case status >= 500:
		return "error", "ERROR"
	case status >= 400:
		return "warn", "WARN"
	case threshold > 0 && latency > threshold:
		return "info", "WARN"
	default:
		return "info", "INFO"
	}
}

func createLogEvent(log logger.Logger, level string) logger.LogEvent {
	switch level {
	case "error":
		return log.Error()
	case "warn":
		return log.Warn()
	default:
		return log.Info()
	}
}

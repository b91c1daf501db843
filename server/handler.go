package server

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/multitenant"
)

// IAPIError defines the interface for API errors with structured information.
type IAPIError interface {
	ErrorCode() string
	Message() string
	HTTPStatus() int
	Details() map[string]any
}

// APIResponse represents the standardized API response format.
type APIResponse struct {
	Data  any               `json:"data,omitempty"`
	Error *APIErrorResponse `json:"error,omitempty"`
	Meta  map[string]any    `json:"meta"`
}

// APIErrorResponse represents the error portion of an API response.
type APIErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// validationDetailsKey holds field errors, which are returned in every environment.
const validationDetailsKey = "validationErrors"

// HandlerFunc is a typed handler focused on business logic.
type HandlerFunc[T any, R any] func(request T, ctx HandlerContext) (R, IAPIError)

// HandlerContext gives handlers access to the echo context when they need it.
type HandlerContext struct {
	Echo   echo.Context
	Config *config.Config
}

// Context returns the request context carrying the tenant scope.
func (h HandlerContext) Context() context.Context {
	return h.Echo.Request().Context()
}

// Scope returns the tenant scope bound by TenantScope.
func (h HandlerContext) Scope() (multitenant.Scope, bool) {
	return multitenant.ScopeFromContext(h.Context())
}

// PathID parses the named path parameter as a positive entity id.
func (h HandlerContext) PathID(name string) (int64, IAPIError) {
	id, err := strconv.ParseInt(h.Echo.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewBadRequestError(fmt.Sprintf("Invalid %s", name))
	}
	return id, nil
}

// RouteRegistrar is the subset of echo routing modules register against.
// *echo.Group satisfies it.
type RouteRegistrar interface {
	Add(method, path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) *echo.Route
	Use(middleware ...echo.MiddlewareFunc)
}

// HandlerRegistry binds typed handlers to routes.
type HandlerRegistry struct {
	binder *RequestBinder
	cfg    *config.Config
}

// NewHandlerRegistry creates a handler registry for cfg.
func NewHandlerRegistry(cfg *config.Config) *HandlerRegistry {
	return &HandlerRegistry{
		binder: NewRequestBinder(),
		cfg:    cfg,
	}
}

// RegisterHandler wraps handler and adds it to r.
func RegisterHandler[T any, R any](hr *HandlerRegistry, r RouteRegistrar, method, path string, handler HandlerFunc[T, R]) {
	r.Add(method, path, WrapHandler(handler, hr.binder, hr.cfg))
}

// GET registers a GET handler.
func GET[T any, R any](hr *HandlerRegistry, r RouteRegistrar, path string, handler HandlerFunc[T, R]) {
	RegisterHandler(hr, r, http.MethodGet, path, handler)
}

// POST registers a POST handler.
func POST[T any, R any](hr *HandlerRegistry, r RouteRegistrar, path string, handler HandlerFunc[T, R]) {
	RegisterHandler(hr, r, http.MethodPost, path, handler)
}

// PUT registers a PUT handler.
func PUT[T any, R any](hr *HandlerRegistry, r RouteRegistrar, path string, handler HandlerFunc[T, R]) {
	RegisterHandler(hr, r, http.MethodPut, path, handler)
}

// DELETE registers a DELETE handler.
func DELETE[T any, R any](hr *HandlerRegistry, r RouteRegistrar, path string, handler HandlerFunc[T, R]) {
	RegisterHandler(hr, r, http.MethodDelete, path, handler)
}

// RequestBinder binds path, query, header and JSON body data onto request structs.
type RequestBinder struct{}

// NewRequestBinder creates a new request binder.
func NewRequestBinder() *RequestBinder { return &RequestBinder{} }

// WrapHandler wraps a business logic handler into an Echo-compatible handler.
// It handles request binding, validation, response formatting, and error handling.
func WrapHandler[T any, R any](handlerFunc HandlerFunc[T, R], binder *RequestBinder, cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request T

		if err := binder.bindRequest(c, &request); err != nil {
			return formatErrorResponse(c, NewBadRequestError("Invalid request data").WithDetails("error", err.Error()), cfg)
		}

		if err := c.Validate(&request); err != nil {
			vErr := NewBadRequestError("Request validation failed")
			var ve *ValidationError
			if errors.As(err, &ve) {
				_ = vErr.WithDetails(validationDetailsKey, ve.Errors)
			} else {
				_ = vErr.WithDetails("error", err.Error())
			}
			return formatErrorResponse(c, vErr, cfg)
		}

		response, apiErr := handlerFunc(request, HandlerContext{Echo: c, Config: cfg})
		if apiErr != nil {
			return formatErrorResponse(c, apiErr, cfg)
		}

		if rl, ok := any(response).(ResultLike); ok {
			status, headers, data := rl.ResultMeta()
			return formatSuccessResponseWithStatus(c, data, status, headers)
		}
		return formatSuccessResponseWithStatus(c, response, http.StatusOK, nil)
	}
}

func (rb *RequestBinder) bindRequest(c echo.Context, target any) error {
	targetValue := reflect.ValueOf(target).Elem()
	if targetValue.Kind() != reflect.Struct {
		return nil
	}
	targetType := targetValue.Type()

	// JSON body, tolerating parameters such as charset
	if ct := c.Request().Header.Get(echo.HeaderContentType); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt == echo.MIMEApplicationJSON || strings.HasSuffix(mt, "+json") {
			if err := c.Bind(target); err != nil {
				return fmt.Errorf("failed to bind JSON body: %w", err)
			}
		}
	}

	for i := range targetType.NumField() {
		field := targetType.Field(i)
		fieldValue := targetValue.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		if name := field.Tag.Get("param"); name != "" {
			if value := c.Param(name); value != "" {
				if err := setFieldValue(fieldValue, value); err != nil {
					return fmt.Errorf("failed to set path param %s: %w", name, err)
				}
			}
		}

		if name := field.Tag.Get("query"); name != "" {
			if value := c.QueryParam(name); value != "" {
				if err := setFieldValue(fieldValue, value); err != nil {
					return fmt.Errorf("failed to set query param %s: %w", name, err)
				}
			}
		}

		if name := field.Tag.Get("header"); name != "" {
			if value := c.Request().Header.Get(name); value != "" {
				if err := setFieldValue(fieldValue, value); err != nil {
					return fmt.Errorf("failed to set header %s: %w", name, err)
				}
			}
		}
	}
	return nil
}

// setFieldValue converts value to the field's kind. Pointers are allocated.
func setFieldValue(fieldValue reflect.Value, value string) error {
	if fieldValue.Kind() == reflect.Ptr {
		if fieldValue.IsNil() {
			fieldValue.Set(reflect.New(fieldValue.Type().Elem()))
		}
		return setFieldValue(fieldValue.Elem(), value)
	}

	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(value, 10, fieldValue.Type().Bits())
		if err != nil {
			return err
		}
		fieldValue.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(value, 10, fieldValue.Type().Bits())
		if err != nil {
			return err
		}
		fieldValue.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(value, fieldValue.Type().Bits())
		if err != nil {
			return err
		}
		fieldValue.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		fieldValue.SetBool(v)
	default:
		return fmt.Errorf("unsupported field type: %s", fieldValue.Type())
	}
	return nil
}

// ResultLike exposes status, headers, and payload for successful responses.
type ResultLike interface {
	ResultMeta() (status int, headers http.Header, data any)
}

// Result lets handlers choose the status and headers of a success response.
type Result[R any] struct {
	Data    R
	Status  int
	Headers http.Header
}

// ResultMeta implements ResultLike.
func (r Result[R]) ResultMeta() (status int, headers http.Header, data any) {
	return r.Status, r.Headers, r.Data
}

// NoContentResult represents a 204 No Content response without a body.
type NoContentResult struct{}

// ResultMeta implements ResultLike.
func (NoContentResult) ResultMeta() (status int, headers http.Header, data any) {
	return http.StatusNoContent, nil, nil
}

// OK returns a 200 Result for data.
func OK[R any](data R) Result[R] {
	return Result[R]{Data: data, Status: http.StatusOK}
}

// Created returns a 201 Result for data.
func Created[R any](data R) Result[R] {
	return Result[R]{Data: data, Status: http.StatusCreated}
}

// NoContent returns a 204 result without a response body.
func NoContent() NoContentResult { return NoContentResult{} }

func formatSuccessResponseWithStatus(c echo.Context, data any, status int, headers http.Header) error {
	if status == 0 {
		status = http.StatusOK
	}
	for k, vals := range headers {
		for _, v := range vals {
			c.Response().Header().Add(k, v)
		}
	}
	if status == http.StatusNoContent {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(status, APIResponse{
		Data: data,
		Meta: responseMeta(c),
	})
}

// formatErrorResponse writes apiErr in the standard envelope. Details are
// returned only in development, except validation field errors.
func formatErrorResponse(c echo.Context, apiErr IAPIError, cfg *config.Config) error {
	errorResp := &APIErrorResponse{
		Code:    apiErr.ErrorCode(),
		Message: apiErr.Message(),
	}

	details := apiErr.Details()
	switch {
	case len(details) == 0:
	case cfg != nil && cfg.IsDevelopment():
		errorResp.Details = details
	default:
		if fields, ok := details[validationDetailsKey]; ok {
			errorResp.Details = map[string]any{validationDetailsKey: fields}
		}
	}

	return c.JSON(apiErr.HTTPStatus(), APIResponse{
		Error: errorResp,
		Meta:  responseMeta(c),
	})
}

func responseMeta(c echo.Context) map[string]any {
	return map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"traceId":   getTraceID(c),
	}
}

// getTraceID prefers the active span's trace id and falls back to the request id.
func getTraceID(c echo.Context) string {
	if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

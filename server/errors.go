package server

import (
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/nephrolytics/practice-api/auth"
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/multitenant"
)

// CodeTenancyInvalid is the error code returned when no tenant can scope a request.
const CodeTenancyInvalid = "tenancy_invalid"

// BaseAPIError provides a basic implementation of IAPIError.
type BaseAPIError struct {
	code       string
	message    string
	httpStatus int
	details    map[string]any
}

// NewBaseAPIError creates a new base API error.
func NewBaseAPIError(code, message string, httpStatus int) *BaseAPIError {
	return &BaseAPIError{
		code:       code,
		message:    message,
		httpStatus: httpStatus,
		details:    make(map[string]any),
	}
}

// ErrorCode returns the error code.
func (e *BaseAPIError) ErrorCode() string {
	return e.code
}

// Message returns the error message.
func (e *BaseAPIError) Message() string {
	return e.message
}

// HTTPStatus returns the HTTP status code.
func (e *BaseAPIError) HTTPStatus() int {
	return e.httpStatus
}

// Details returns a copy of the error details.
func (e *BaseAPIError) Details() map[string]any {
	if e.details == nil {
		return nil
	}
	cp := make(map[string]any, len(e.details))
	maps.Copy(cp, e.details)
	return cp
}

// WithDetails adds details to the error.
func (e *BaseAPIError) WithDetails(key string, value any) *BaseAPIError {
	e.details[key] = value
	return e
}

func (e *BaseAPIError) Error() string {
	if e == nil {
		return ""
	}
	if e.code == "" {
		return e.message
	}
	return e.code + ": " + e.message
}

// NotFoundError represents resource not found errors. Rows owned by another
// tenant are reported the same way as rows that do not exist.
type NotFoundError struct {
	*BaseAPIError
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource string) *NotFoundError {
	message := fmt.Sprintf("%s not found", resource)
	return &NotFoundError{
		BaseAPIError: NewBaseAPIError("NOT_FOUND", message, http.StatusNotFound),
	}
}

// ConflictError represents resource conflict errors.
type ConflictError struct {
	*BaseAPIError
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{
		BaseAPIError: NewBaseAPIError("CONFLICT", message, http.StatusConflict),
	}
}

// UnauthorizedError represents authentication errors.
type UnauthorizedError struct {
	*BaseAPIError
}

// NewUnauthorizedError creates a new unauthorized error.
func NewUnauthorizedError(message string) *UnauthorizedError {
	if message == "" {
		message = "Authentication required"
	}
	return &UnauthorizedError{
		BaseAPIError: NewBaseAPIError("UNAUTHORIZED", message, http.StatusUnauthorized),
	}
}

// ForbiddenError represents authorization errors.
type ForbiddenError struct {
	*BaseAPIError
}

// NewForbiddenError creates a new forbidden error.
func NewForbiddenError(message string) *ForbiddenError {
	if message == "" {
		message = "Access denied"
	}
	return &ForbiddenError{
		BaseAPIError: NewBaseAPIError("FORBIDDEN", message, http.StatusForbidden),
	}
}

// TenancyInvalidError is returned when the caller belongs to no account.
// Retrying does not help until membership changes.
type TenancyInvalidError struct {
	*BaseAPIError
}

// NewTenancyInvalidError creates a new tenancy error.
func NewTenancyInvalidError() *TenancyInvalidError {
	return &TenancyInvalidError{
		BaseAPIError: NewBaseAPIError(CodeTenancyInvalid, "No account is available for this user", http.StatusForbidden),
	}
}

// InternalServerError represents internal server errors.
type InternalServerError struct {
	*BaseAPIError
}

// NewInternalServerError creates a new internal server error.
func NewInternalServerError(message string) *InternalServerError {
	if message == "" {
		message = "An internal error occurred"
	}
	return &InternalServerError{
		BaseAPIError: NewBaseAPIError("INTERNAL_ERROR", message, http.StatusInternalServerError),
	}
}

// BadRequestError represents bad request errors.
type BadRequestError struct {
	*BaseAPIError
}

// NewBadRequestError creates a new bad request error.
func NewBadRequestError(message string) *BadRequestError {
	return &BadRequestError{
		BaseAPIError: NewBaseAPIError("BAD_REQUEST", message, http.StatusBadRequest),
	}
}

// TooManyRequestsError represents rate limiting errors.
type TooManyRequestsError struct {
	*BaseAPIError
}

// NewTooManyRequestsError creates a new too many requests error.
func NewTooManyRequestsError(message string) *TooManyRequestsError {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return &TooManyRequestsError{
		BaseAPIError: NewBaseAPIError("TOO_MANY_REQUESTS", message, http.StatusTooManyRequests),
	}
}

// FromError translates domain sentinel errors into API errors. resource names
// the entity in not-found messages. Unknown errors become 500s with the cause
// kept in details for development responses.
func FromError(err error, resource string) IAPIError {
	var apiErr IAPIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, database.ErrNotFound):
		return NewNotFoundError(resource)
	case errors.Is(err, multitenant.ErrTenancyInvalid), errors.Is(err, multitenant.ErrNoScope):
		return NewTenancyInvalidError()
	case errors.Is(err, multitenant.ErrStaffOnly):
		return NewForbiddenError("This operation requires a staff user")
	case errors.Is(err, auth.ErrUnauthenticated):
		return NewUnauthorizedError("")
	case errors.Is(err, database.ErrInvalidReference):
		return NewBadRequestError("Referenced entity does not exist").WithDetails("error", err.Error())
	case errors.Is(err, database.ErrDuplicate):
		return NewConflictError(resource + " already exists")
	case errors.Is(err, database.ErrOwnerRequired):
		return NewBadRequestError("account_id is required").WithDetails("error", err.Error())
	default:
		return NewInternalServerError("").WithDetails("error", err.Error())
	}
}

var (
	_ IAPIError = (*BaseAPIError)(nil)
	_ IAPIError = (*TenancyInvalidError)(nil)
)

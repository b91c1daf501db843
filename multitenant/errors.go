package multitenant

import "errors"

var (
	// ErrTenancyInvalid is returned when a non-staff principal has no resolvable tenant.
	ErrTenancyInvalid = errors.New("tenancy invalid")
	// ErrNoScope is returned when a tenant-scoped operation runs without a bound scope.
	ErrNoScope = errors.New("no tenant scope bound to context")
	// ErrStaffOnly is returned when a non-staff principal attempts a staff operation.
	ErrStaffOnly = errors.New("operation requires a staff principal")
)

package multitenant

import "context"

// ctxKey ensures tenant context keys do not collide with external packages.
type ctxKey struct{}

var scopeKey ctxKey

// WithScope returns a copy of ctx carrying scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFromContext extracts the scope bound by WithScope.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	scope, ok := ctx.Value(scopeKey).(Scope)
	return scope, ok
}

// TenantFromContext returns the scoped tenant, or false when the request is unscoped.
func TenantFromContext(ctx context.Context) (*Tenant, bool) {
	scope, ok := ScopeFromContext(ctx)
	if !ok || scope.Tenant == nil {
		return nil, false
	}
	return scope.Tenant, true
}

// RequireStaff fails with ErrStaffOnly unless ctx carries a staff principal.
func RequireStaff(ctx context.Context) error {
	scope, ok := ScopeFromContext(ctx)
	if !ok {
		return ErrNoScope
	}
	if !scope.Principal.Staff {
		return ErrStaffOnly
	}
	return nil
}

// Package multitenant resolves which account scopes a request and carries
// that scope on the request context.
package multitenant

// Tenant is an account, the isolation boundary for users and domain rows.
type Tenant struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	Subdomain string `json:"subdomain"`
}

// Principal is the authenticated caller.
type Principal struct {
	ID       int64
	Username string
	// Staff covers both staff and superuser accounts.
	Staff bool
	// PreferredTenantID is the user's active account, if any.
	PreferredTenantID *int64
}

// Scope is the tenant binding for one request.
type Scope struct {
	Principal Principal
	// Tenant is nil only for staff principals running unscoped.
	Tenant *Tenant
}

// TenantID returns the scoped tenant id.
func (s Scope) TenantID() (int64, bool) {
	if s.Tenant == nil {
		return 0, false
	}
	return s.Tenant.ID, true
}

// Unrestricted reports whether queries run without a tenant predicate.
func (s Scope) Unrestricted() bool {
	return s.Tenant == nil && s.Principal.Staff
}

// Valid reports whether the scope may reach storage at all.
func (s Scope) Valid() bool {
	return s.Tenant != nil || s.Principal.Staff
}

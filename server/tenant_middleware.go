package server

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/nephrolytics/practice-api/auth"
	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/multitenant"
)

// ScopeContextKey is the echo.Context store key holding the bound multitenant.Scope.
const ScopeContextKey = "tenant_scope"

// ScopeResolver resolves the tenant scope for an authenticated principal.
type ScopeResolver interface {
	Scope(ctx context.Context, p multitenant.Principal) (multitenant.Scope, error)
}

// Authenticate identifies the caller and stores the principal on the request context.
func Authenticate(authn auth.Authenticator, log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			principal, err := authn.Authenticate(req.Context(), req)
			if err != nil {
				if !errors.Is(err, auth.ErrUnauthenticated) {
					log.WithContext(req.Context()).Error().Err(err).Msg("Authentication backend failed")
				}
				return errorOf(FromError(err, "principal"))
			}

			if rl := requestLogFrom(c); rl != nil {
				rl.setPrincipal(principal.ID)
			}
			c.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), principal)))
			return next(c)
		}
	}
}

// TenantScope resolves the caller's tenant and binds it to the request for the
// rest of the handler chain. The binding is released when the chain returns,
// whether it succeeded, failed, or panicked, so a pooled echo.Context never
// carries a scope into the next request.
func TenantScope(resolver ScopeResolver, log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			principal, ok := auth.PrincipalFromContext(req.Context())
			if !ok {
				return NewUnauthorizedError("")
			}

			scope, err := resolver.Scope(req.Context(), principal)
			if err != nil {
				log.WithContext(req.Context()).Warn().
					Err(err).
					Int64("principal_id", principal.ID).
					Msg("Tenant resolution rejected request")
				return errorOf(FromError(err, "tenant"))
			}

			c.SetRequest(req.WithContext(multitenant.WithScope(req.Context(), scope)))
			c.Set(ScopeContextKey, scope)
			defer func() {
				c.Set(ScopeContextKey, nil)
				c.SetRequest(req)
			}()

			if tenantID, ok := scope.TenantID(); ok {
				if rl := requestLogFrom(c); rl != nil {
					rl.setTenant(tenantID)
				}
			}
			return next(c)
		}
	}
}

// ScopeFrom returns the scope bound to c by TenantScope.
func ScopeFrom(c echo.Context) (multitenant.Scope, bool) {
	scope, ok := c.Get(ScopeContextKey).(multitenant.Scope)
	return scope, ok
}

// errorOf returns apiErr as an error for echo's error handler.
func errorOf(apiErr IAPIError) error {
	if err, ok := apiErr.(error); ok {
		return err
	}
	return NewBaseAPIError(apiErr.ErrorCode(), apiErr.Message(), apiErr.HTTPStatus())
}

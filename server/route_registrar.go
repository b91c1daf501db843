package server

import (
	"slices"

	"github.com/labstack/echo/v4"
)

// routeGroup attaches middleware to each route it adds rather than to an echo
// group, so several tiers can share one prefix without competing catch-all routes.
type routeGroup struct {
	parent     RouteRegistrar
	middleware []echo.MiddlewareFunc
}

// NewRouteGroup returns a registrar adding routes to parent with middleware
// running before any route-specific middleware.
func NewRouteGroup(parent RouteRegistrar, middleware ...echo.MiddlewareFunc) RouteRegistrar {
	return &routeGroup{
		parent:     parent,
		middleware: slices.Clone(middleware),
	}
}

func (rg *routeGroup) Add(method, path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) *echo.Route {
	chain := make([]echo.MiddlewareFunc, 0, len(rg.middleware)+len(middleware))
	chain = append(chain, rg.middleware...)
	chain = append(chain, middleware...)
	return rg.parent.Add(method, path, handler, chain...)
}

// Use applies to routes added afterwards.
func (rg *routeGroup) Use(middleware ...echo.MiddlewareFunc) {
	rg.middleware = append(rg.middleware, middleware...)
}

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func tag(name string, calls *[]string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			*calls = append(*calls, name)
			return next(c)
		}
	}
}

func TestRouteGroupsShareAPrefix(t *testing.T) {
	e := echo.New()
	base := e.Group("/api")

	var calls []string
	public := NewRouteGroup(base)
	scoped := NewRouteGroup(base, tag("auth", &calls), tag("tenant", &calls))

	ok := func(c echo.Context) error { return c.String(http.StatusOK, c.Path()) }
	public.Add(http.MethodGet, "/ping", ok)
	scoped.Add(http.MethodGet, "/patients", ok, tag("route", &calls))
	scoped.Use(tag("late", &calls))
	scoped.Add(http.MethodGet, "/labs", ok)

	serve := func(path string) *httptest.ResponseRecorder {
		calls = nil
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		return rec
	}

	rec := serve("/api/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, calls)

	rec = serve("/api/patients")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auth,tenant,route", strings.Join(calls, ","))

	rec = serve("/api/labs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auth,tenant,late", strings.Join(calls, ","))

	// Unknown paths are not swallowed by a group catch-all and skip middleware.
	rec = serve("/api/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, calls)
}

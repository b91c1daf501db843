package crud

import (
	"github.com/nephrolytics/practice-api/app"
	"github.com/nephrolytics/practice-api/server"
)

// Module serves one tenant-owned entity on the scoped route group.
type Module[T any, P Record[T]] struct {
	name    string
	path    string
	schema  Schema[T]
	repo    *Repository[T, P]
	handler *Handler[T, P]
}

var _ app.Module = (*Module[Meta, *Meta])(nil)

// NewModule creates a module named name serving schema under path.
func NewModule[T any, P Record[T]](name, path string, schema Schema[T]) *Module[T, P] {
	return &Module[T, P]{name: name, path: path, schema: schema}
}

// Name returns the module name.
func (m *Module[T, P]) Name() string {
	return m.name
}

// Init builds the repository and handler.
func (m *Module[T, P]) Init(deps *app.ModuleDeps) error {
	m.repo = NewRepository[T, P](deps.DB, deps.Scoper, m.schema)
	m.handler = NewHandler(m.repo, deps.Events, deps.Logger, m.path)
	return nil
}

// RegisterRoutes registers the list, get, create, update and delete routes.
func (m *Module[T, P]) RegisterRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar) {
	m.handler.Register(hr, r)
}

// Repository returns the module's repository once Init has run.
func (m *Module[T, P]) Repository() *Repository[T, P] {
	return m.repo
}

// Shutdown releases nothing; the database is owned by the application.
func (m *Module[T, P]) Shutdown() error {
	return nil
}

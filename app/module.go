package app

import (
	"github.com/nephrolytics/practice-api/auth"
	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/directory"
	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/messaging"
	"github.com/nephrolytics/practice-api/server"
)

// Module defines the interface that all application modules must implement.
// RegisterRoutes receives the tenant-scoped route group: every request
// reaching those handlers carries a resolved scope on its context.
type Module interface {
	Name() string
	Init(deps *ModuleDeps) error
	RegisterRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar)
	Shutdown() error
}

// PublicRouter is implemented by modules serving routes without authentication.
type PublicRouter interface {
	RegisterPublicRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar)
}

// PrincipalRouter is implemented by modules serving routes that need an
// authenticated principal but no tenant, such as switching the active account.
type PrincipalRouter interface {
	RegisterPrincipalRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar)
}

// ModuleDeps contains the dependencies that are injected into each module.
type ModuleDeps struct {
	Logger logger.Logger
	Config *config.Config

	DB     database.Interface
	Scoper *database.Scoper
	Events *messaging.Emitter

	// Directory reads principals and memberships.
	Directory *directory.Store

	// Tokens is nil unless bearer tokens are enabled.
	Tokens auth.TokenIssuer
}

// RouteGroups holds the three authentication tiers routes are registered on.
type RouteGroups struct {
	Public    server.RouteRegistrar
	Principal server.RouteRegistrar
	Scoped    server.RouteRegistrar
}

// ModuleRegistry manages the registration and lifecycle of application modules.
type ModuleRegistry struct {
	modules []Module
	deps    *ModuleDeps
	logger  logger.Logger
}

// NewModuleRegistry creates a new module registry with the given dependencies.
func NewModuleRegistry(deps *ModuleDeps) *ModuleRegistry {
	return &ModuleRegistry{
		modules: make([]Module, 0),
		deps:    deps,
		logger:  deps.Logger,
	}
}

// Register initializes module and adds it to the registry.
func (r *ModuleRegistry) Register(module Module) error {
	r.logger.Info().
		Str("module", module.Name()).
		Msg("Registering module")

	if err := module.Init(r.deps); err != nil {
		return err
	}
	r.modules = append(r.modules, module)
	return nil
}

// RegisterRoutes adds the routes of every registered module to groups.
func (r *ModuleRegistry) RegisterRoutes(groups RouteGroups) {
	hr := server.NewHandlerRegistry(r.deps.Config)

	for _, module := range r.modules {
		r.logger.Info().
			Str("module", module.Name()).
			Msg("Registering module routes")

		if pub, ok := module.(PublicRouter); ok {
			pub.RegisterPublicRoutes(hr, groups.Public)
		}
		if pr, ok := module.(PrincipalRouter); ok {
			pr.RegisterPrincipalRoutes(hr, groups.Principal)
		}
		module.RegisterRoutes(hr, groups.Scoped)
	}
}

// Modules returns the registered modules in registration order.
func (r *ModuleRegistry) Modules() []Module {
	return append([]Module(nil), r.modules...)
}

// Shutdown shuts modules down in reverse registration order. Failures are
// logged and do not stop the remaining modules.
func (r *ModuleRegistry) Shutdown() error {
	for i := len(r.modules) - 1; i >= 0; i-- {
		module := r.modules[i]
		r.logger.Info().
			Str("module", module.Name()).
			Msg("Shutting down module")

		if err := module.Shutdown(); err != nil {
			r.logger.Error().
				Err(err).
				Str("module", module.Name()).
				Msg("Failed to shutdown module")
		}
	}
	return nil
}

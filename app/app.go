// Package app wires the practice API together: tracing and metrics, database, event
// publishing, authentication, tenant resolution, the HTTP server and modules.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/nephrolytics/practice-api/auth"
	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/database/migrations"
	"github.com/nephrolytics/practice-api/database/postgresql"
	"github.com/nephrolytics/practice-api/directory"
	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/messaging"
	"github.com/nephrolytics/practice-api/multitenant"
	"github.com/nephrolytics/practice-api/observability"
	"github.com/nephrolytics/practice-api/server"
)

// Options contains optional dependencies for creating an App instance.
// Nil fields are built from configuration.
type Options struct {
	Database  database.Interface
	Publisher messaging.Publisher
	Tracing   observability.Provider // tracer and meter providers
}

// App represents the main application instance.
type App struct {
	cfg       *config.Config
	logger    logger.Logger
	server    *server.Server
	db        database.Interface
	publisher messaging.Publisher
	tracing   observability.Provider
	registry  *ModuleRegistry
	groups    RouteGroups

	routesOnce   sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an application from cfg, connecting to every configured dependency.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	return NewWithOptions(ctx, cfg, log, nil)
}

// NewWithOptions creates an application, using the dependencies in opts where set.
func NewWithOptions(ctx context.Context, cfg *config.Config, log logger.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Env).
		Str("version", cfg.App.Version).
		Msg("Starting application")

	a := &App{cfg: cfg, logger: log}
	if err := a.init(ctx, opts); err != nil {
		a.closeResources(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts *Options) error {
	cfg, log := a.cfg, a.logger

	a.tracing = opts.Tracing
	if a.tracing == nil {
		tp, err := observability.NewProvider(ctx, &cfg.Observability, &cfg.App, log)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.tracing = tp
	}

	a.db = opts.Database
	if a.db == nil {
		conn, err := postgresql.NewConnection(ctx, &cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = conn
		if err := conn.Instrument(a.tracing.MeterProvider()); err != nil {
			return err
		}
	}

	if cfg.Database.Migrate {
		if err := migrations.Up(ctx, a.db.DB(), log); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	a.publisher = opts.Publisher
	if a.publisher == nil {
		a.publisher = newPublisher(&cfg.Messaging, log)
	}

	store := directory.NewStore(a.db)
	authn, err := auth.New(&cfg.Auth, store)
	if err != nil {
		return fmt.Errorf("failed to initialize authentication: %w", err)
	}
	resolver := multitenant.NewResolver(store, log, multitenant.WithStaffBypass(cfg.Tenancy.StaffBypass))

	srv, err := server.New(cfg, log, a.tracing.TracerProvider(), a.tracing.MeterProvider())
	if err != nil {
		return err
	}
	srv.AddReadinessCheck("database", a.db.Health)
	a.server = srv

	api := srv.API()
	authenticated := []echo.MiddlewareFunc{server.Authenticate(authn, log)}
	if cfg.App.Rate.Limit > 0 {
		authenticated = append(authenticated, server.RateLimit(cfg.App.Rate.Limit, cfg.App.Rate.Burst))
	}
	a.groups = RouteGroups{
		Public:    server.NewRouteGroup(api),
		Principal: server.NewRouteGroup(api, authenticated...),
		Scoped:    server.NewRouteGroup(api, append(authenticated, server.TenantScope(resolver, log))...),
	}

	deps := &ModuleDeps{
		Logger:    log,
		Config:    cfg,
		DB:        a.db,
		Scoper:    database.NewScoper(),
		Events:    messaging.NewEmitter(a.publisher, log),
		Directory: store,
	}
	if issuer, ok := authn.(auth.TokenIssuer); ok {
		deps.Tokens = issuer
	}
	a.registry = NewModuleRegistry(deps)
	return nil
}

func newPublisher(cfg *config.MessagingConfig, log logger.Logger) messaging.Publisher {
	if cfg.BrokerURL == "" {
		log.Debug().Msg("No messaging broker URL configured, domain events disabled")
		return messaging.NopPublisher{}
	}
	pub := messaging.NewAMQPPublisher(cfg.BrokerURL, cfg.Exchange, log)
	if err := pub.Connect(); err != nil {
		// The publisher redials on the next event.
		log.Warn().Err(err).Msg("Messaging broker unavailable at startup")
	}
	return pub
}

// RegisterModules initializes modules in order. Routes are added once, on the
// first call to Handler or Run.
func (a *App) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := a.registry.Register(m); err != nil {
			return fmt.Errorf("failed to register module %s: %w", m.Name(), err)
		}
	}
	return nil
}

// Handler returns the HTTP handler with every module route registered.
func (a *App) Handler() *echo.Echo {
	a.registerRoutes()
	return a.server.Echo()
}

func (a *App) registerRoutes() {
	a.routesOnce.Do(func() {
		a.registry.RegisterRoutes(a.groups)
	})
}

package accounts

import (
	"github.com/nephrolytics/practice-api/app"
	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/messaging"
	"github.com/nephrolytics/practice-api/modules/crud"
	"github.com/nephrolytics/practice-api/multitenant"
	"github.com/nephrolytics/practice-api/server"
)

const resource = "account"

// Module serves /accounts.
type Module struct {
	repo   *Repository
	events *messaging.Emitter
	log    logger.Logger
}

var _ app.Module = (*Module)(nil)

// NewModule creates the accounts module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "accounts"
}

// Init initializes the module with dependencies.
func (m *Module) Init(deps *app.ModuleDeps) error {
	m.repo = NewRepository(deps.DB, deps.Scoper)
	m.events = deps.Events
	m.log = deps.Logger
	return nil
}

// RegisterRoutes registers the account routes on the scoped group.
func (m *Module) RegisterRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar) {
	server.GET(hr, r, "/accounts", m.list)
	server.GET(hr, r, "/accounts/:id", m.get)
	server.POST(hr, r, "/accounts", m.create)
	server.PUT(hr, r, "/accounts/:id", m.update)
	server.DELETE(hr, r, "/accounts/:id", m.delete)
}

// Shutdown cleans up module resources.
func (m *Module) Shutdown() error {
	return nil
}

func (m *Module) list(req crud.ListRequest, hc server.HandlerContext) (crud.Page[Account], server.IAPIError) {
	page, err := m.repo.List(hc.Context(), crud.ListParams{Page: req.Page, PageSize: req.PageSize})
	if err != nil {
		return crud.Page[Account]{}, m.fail(hc, err)
	}
	return page, nil
}

func (m *Module) get(req crud.IDRequest, hc server.HandlerContext) (*Account, server.IAPIError) {
	a, err := m.repo.Get(hc.Context(), req.ID)
	if err != nil {
		return nil, m.fail(hc, err)
	}
	return a, nil
}

func (m *Module) create(req Account, hc server.HandlerContext) (server.Result[*Account], server.IAPIError) {
	if err := multitenant.RequireStaff(hc.Context()); err != nil {
		return server.Result[*Account]{}, m.fail(hc, err)
	}
	a, err := m.repo.Create(hc.Context(), &req)
	if err != nil {
		return server.Result[*Account]{}, m.fail(hc, err)
	}
	m.emit(hc, messaging.ActionCreated, a.ID)
	return server.Created(a), nil
}

func (m *Module) update(req Account, hc server.HandlerContext) (*Account, server.IAPIError) {
	id, apiErr := hc.PathID("id")
	if apiErr != nil {
		return nil, apiErr
	}
	a, err := m.repo.Update(hc.Context(), id, &req)
	if err != nil {
		return nil, m.fail(hc, err)
	}
	m.emit(hc, messaging.ActionUpdated, a.ID)
	return a, nil
}

func (m *Module) delete(req crud.IDRequest, hc server.HandlerContext) (server.NoContentResult, server.IAPIError) {
	if err := multitenant.RequireStaff(hc.Context()); err != nil {
		return server.NoContentResult{}, m.fail(hc, err)
	}
	if err := m.repo.Delete(hc.Context(), req.ID); err != nil {
		return server.NoContentResult{}, m.fail(hc, err)
	}
	m.emit(hc, messaging.ActionDeleted, req.ID)
	return server.NoContent(), nil
}

// emit publishes an account event. The account is its own owner.
func (m *Module) emit(hc server.HandlerContext, action string, id int64) {
	var actor int64
	if scope, ok := hc.Scope(); ok {
		actor = scope.Principal.ID
	}
	m.events.Emit(hc.Context(), messaging.NewEvent(resource, action, id, id, actor))
}

func (m *Module) fail(hc server.HandlerContext, err error) server.IAPIError {
	apiErr := server.FromError(err, resource)
	if apiErr.HTTPStatus() >= 500 {
		m.log.WithContext(hc.Context()).Error().Err(err).Str("resource", resource).Msg("Request failed")
	}
	return apiErr
}
